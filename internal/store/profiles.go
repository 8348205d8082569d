package store

import (
	"context"
	"fmt"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

// GetProfile fetches one profile by id.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	var p models.Profile
	err := s.db.Select(ctx, tableProfiles, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", userID)},
		Single:  true,
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UpdateProfile overwrites the given columns of one profile.
func (s *Store) UpdateProfile(ctx context.Context, userID string, updates models.ProfileUpdate) error {
	if err := required("user_id", userID); err != nil {
		return err
	}
	if err := validation.ValidateProfileUpdate(updates); err != nil {
		return err
	}
	if err := s.db.Update(ctx, tableProfiles, backend.Row(updates), backend.Eq("id", userID)); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
