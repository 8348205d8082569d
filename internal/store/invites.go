package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
)

const (
	inviteCodeLength = 6
	inviteTTL        = 30 * 24 * time.Hour
)

var inviteCodeSpace = new(big.Int).Exp(big.NewInt(36), big.NewInt(inviteCodeLength), nil)

// GenerateInviteCode returns 6 random characters from [0-9A-Z]. Uniqueness
// is left to the service.
func GenerateInviteCode() (string, error) {
	n, err := rand.Int(rand.Reader, inviteCodeSpace)
	if err != nil {
		return "", err
	}
	code := strings.ToUpper(strconv.FormatInt(n.Int64(), 36))
	return strings.Repeat("0", inviteCodeLength-len(code)) + code, nil
}

// GenerateInviteLink creates a link for userID that expires in 30 days.
func (s *Store) GenerateInviteLink(ctx context.Context, userID string) (*models.InviteLink, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	code, err := GenerateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generate invite link: %w", err)
	}

	var link models.InviteLink
	err = s.db.Insert(ctx, tableInviteLinks, backend.Row{
		"creator_id": userID,
		"code":       code,
		"expires_at": s.now().UTC().Add(inviteTTL),
	}, &link)
	if err != nil {
		return nil, fmt.Errorf("generate invite link: %w", err)
	}
	return &link, nil
}

// GetInviteLinks lists the user's links, newest first, each with the
// profiles that joined through it.
func (s *Store) GetInviteLinks(ctx context.Context, userID string) ([]models.InviteLink, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	var out []models.InviteLink
	err := s.db.Select(ctx, tableInviteLinks, backend.Query{
		Embeds: []backend.Embed{{
			Alias:   "invitees",
			Table:   tableProfiles,
			Column:  "invite_link_id",
			Columns: []string{"id", "full_name", "created_at"},
		}},
		Filters: []backend.Filter{backend.Eq("creator_id", userID)},
		Order:   &backend.Order{Column: "created_at"},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get invite links: %w", err)
	}
	if out == nil {
		out = []models.InviteLink{}
	}
	return out, nil
}

// ValidateInviteCode returns the link for code if it has not expired.
// Unknown and expired codes surface as backend.ErrNoRows.
func (s *Store) ValidateInviteCode(ctx context.Context, code string) (*models.InviteLink, error) {
	if err := required("code", code); err != nil {
		return nil, err
	}
	var link models.InviteLink
	err := s.db.Select(ctx, tableInviteLinks, backend.Query{
		Filters: []backend.Filter{
			backend.Eq("code", code),
			backend.Gte("expires_at", s.now().UTC().Format(time.RFC3339Nano)),
		},
		Single: true,
	}, &link)
	if err != nil {
		return nil, fmt.Errorf("validate invite code: %w", err)
	}
	return &link, nil
}
