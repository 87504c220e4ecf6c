package store

import (
	"context"
	"fmt"

	"holidaysync/internal/models"
)

// CreateReview creates a new review
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (id, user_id, activity_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.db.GetContext(ctx, &review.CreatedAt, query,
		review.ID, review.UserID, review.ActivityID, review.Rating, review.Comment)
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintReviewUserActivity {
		return ErrDuplicateReview
	}
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}
