package service

import (
	"context"
	"errors"

	"holidaysync/internal/auth"
	"holidaysync/internal/store"
	"holidaysync/internal/util"

	"go.uber.org/zap"
)

// CatalogService holds the admin operations on activities
type CatalogService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository) *CatalogService {
	return &CatalogService{repo: repo, logger: util.GetLogger()}
}

// UpdatePrice changes an activity's list price. Bookings already made keep the
// total they were created with.
func (cs *CatalogService) UpdatePrice(ctx context.Context, caller *auth.Caller, activityID string, priceCents int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if !idPattern.MatchString(activityID) {
		return validationError("activity id is invalid")
	}
	if priceCents <= 0 {
		return validationError("price must be positive")
	}

	if err := cs.repo.UpdateActivityPrice(ctx, activityID, priceCents); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("activity", err)
		}
		return internalError("failed to update price", err)
	}

	cs.logger.Info("Activity price updated",
		zap.String("activity_id", activityID),
		zap.Int64("price_cents", priceCents),
		zap.String("admin_id", caller.UserID))
	return nil
}
