package service

import (
	"context"
	"strings"
	"testing"

	"holidaysync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReview(t *testing.T) {
	f := newFixture(t)
	rs := NewReviewService(f.repo)
	ctx := context.Background()
	resp := f.book(t, customer, 1)
	req := &SubmitReviewRequest{Rating: 5, Comment: "  Wonderful sunset!  "}

	_, err := rs.Submit(ctx, customer, activityID, req)
	assert.Equal(t, CodeUnauthorized, ErrorCode(err), "pending booking does not count")

	_, err = f.bookings.UpdateStatus(ctx, admin, resp.BookingID, models.BookingStatusConfirmed, false)
	require.NoError(t, err)

	review, err := rs.Submit(ctx, customer, activityID, req)
	require.NoError(t, err)
	assert.Equal(t, "Wonderful sunset!", review.Comment)

	_, err = rs.Submit(ctx, customer, activityID, req)
	assert.Equal(t, CodeConflict, ErrorCode(err))
}

func TestSubmitReviewValidation(t *testing.T) {
	f := newFixture(t)
	rs := NewReviewService(f.repo)
	ctx := context.Background()

	_, err := rs.Submit(ctx, nil, activityID, &SubmitReviewRequest{Rating: 5, Comment: "Great trip"})
	assert.Equal(t, CodeUnauthenticated, ErrorCode(err))

	for _, req := range []*SubmitReviewRequest{
		{Rating: 0, Comment: "Great trip"},
		{Rating: 6, Comment: "Great trip"},
		{Rating: 4, Comment: "meh"},
		{Rating: 4, Comment: strings.Repeat("x", 501)},
	} {
		_, err := rs.Submit(ctx, customer, activityID, req)
		assert.Equal(t, CodeValidation, ErrorCode(err))
	}

	_, err = rs.Submit(ctx, customer, "missing", &SubmitReviewRequest{Rating: 4, Comment: "Great trip"})
	assert.Equal(t, CodeNotFound, ErrorCode(err))
}
