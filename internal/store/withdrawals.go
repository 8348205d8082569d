package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

// CreateWithdrawalRequest records a pending payout.
func (s *Store) CreateWithdrawalRequest(ctx context.Context, userID string, amount decimal.Decimal, paymentMethod string) error {
	if err := required("user_id", userID, "payment_method", paymentMethod); err != nil {
		return err
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return err
	}
	err := s.db.Insert(ctx, tableWithdrawals, backend.Row{
		"user_id":        userID,
		"amount":         amount,
		"payment_method": paymentMethod,
		"status":         models.WithdrawalPending,
	}, nil)
	if err != nil {
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

// GetWithdrawalHistory lists the user's requests, newest first.
func (s *Store) GetWithdrawalHistory(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	var out []models.WithdrawalRequest
	err := s.db.Select(ctx, tableWithdrawals, backend.Query{
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Order:   &backend.Order{Column: "created_at"},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get withdrawal history: %w", err)
	}
	if out == nil {
		out = []models.WithdrawalRequest{}
	}
	return out, nil
}
