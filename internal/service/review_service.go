package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewService accepts reviews from customers who completed a booking
type ReviewService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(repo store.Repository) *ReviewService {
	return &ReviewService{repo: repo, logger: util.GetLogger()}
}

// SubmitReviewRequest represents a review submission
type SubmitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Submit stores a review. The caller needs a CONFIRMED booking of the activity
// and may review each activity once.
func (rs *ReviewService) Submit(ctx context.Context, caller *auth.Caller, activityID string, req *SubmitReviewRequest) (*models.Review, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !idPattern.MatchString(activityID) {
		return nil, validationError("activity id is invalid")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, validationError("rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(req.Comment)
	if n := utf8.RuneCountInString(comment); n < 5 || n > 500 {
		return nil, validationError("comment must be between 5 and 500 characters")
	}

	if _, err := rs.repo.GetActivity(ctx, activityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("activity", err)
		}
		return nil, internalError("failed to load activity", err)
	}

	ok, err := rs.repo.HasConfirmedBooking(ctx, caller.UserID, activityID)
	if err != nil {
		return nil, internalError("failed to check bookings", err)
	}
	if !ok {
		return nil, newError(CodeUnauthorized, "only customers with a confirmed booking can review", nil)
	}

	review := &models.Review{
		ID:         uuid.New().String(),
		UserID:     caller.UserID,
		ActivityID: activityID,
		Rating:     req.Rating,
		Comment:    comment,
	}
	if err := rs.repo.CreateReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrDuplicateReview) {
			return nil, newError(CodeConflict, "you already reviewed this activity", err)
		}
		return nil, internalError("failed to save review", err)
	}

	rs.logger.Info("Review submitted",
		zap.String("review_id", review.ID),
		zap.String("activity_id", activityID),
		zap.Int("rating", review.Rating))
	return review, nil
}
