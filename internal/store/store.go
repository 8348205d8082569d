// Package store exposes the typed accessors for every table and stored
// procedure the rewards app uses. Each accessor makes a single call to the
// backend and wraps its error with the operation name.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/ipinfo"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

const (
	tableProfiles    = "profiles"
	tableUserPoints  = "user_points"
	tableWithdrawals = "withdrawal_requests"
	tableInviteLinks = "invite_links"
	tableAuditLogs   = "audit_logs"

	rpcCheckRateLimit  = "check_rate_limit"
	rpcRecordEvent     = "record_analytics_event"
	rpcPruneRateLimits = "prune_rate_limit_hits"
)

// IPResolver looks up the public address of the caller.
type IPResolver interface {
	Resolve(ctx context.Context) ipinfo.Result
}

// Store holds the backend handle shared by every accessor. It is safe for
// concurrent use.
type Store struct {
	db     backend.Client
	ip     IPResolver
	logger *slog.Logger
	now    func() time.Time
}

func New(db backend.Client, ip IPResolver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, ip: ip, logger: logger, now: time.Now}
}

// clientIP prefers the address the caller already knows.
func (s *Store) clientIP(ctx context.Context, client models.ClientInfo) string {
	if client.IP != "" {
		return client.IP
	}
	if s.ip == nil {
		return ipinfo.FallbackIP
	}
	return s.ip.Resolve(ctx).IP
}

func required(fields ...string) error {
	var out validation.Error
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			out.Violations = append(out.Violations, validation.Violation{Field: fields[i], Constraint: "required"})
		}
	}
	if len(out.Violations) == 0 {
		return nil
	}
	return &out
}
