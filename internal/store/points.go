package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
)

// GetUserPoints returns the user's balance. A user with no row yet has zero
// points as of now.
func (s *Store) GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	var p models.UserPoints
	err := s.db.Select(ctx, tableUserPoints, backend.Query{
		Columns: []string{"points", "last_points_update"},
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Single:  true,
	}, &p)
	if errors.Is(err, backend.ErrNoRows) {
		return &models.UserPoints{Points: 0, LastPointsUpdate: s.now().UTC()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	return &p, nil
}

// UpdateUserPoints sets the user's balance, creating the row if needed.
func (s *Store) UpdateUserPoints(ctx context.Context, userID string, points int64) error {
	if err := required("user_id", userID); err != nil {
		return err
	}
	err := s.db.Upsert(ctx, tableUserPoints, backend.Row{
		"user_id":            userID,
		"points":             points,
		"last_points_update": s.now().UTC(),
	}, "user_id")
	if err != nil {
		return fmt.Errorf("update user points: %w", err)
	}
	return nil
}
