package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

// CheckRateLimit asks the service whether action is still allowed for
// userID. The window policy lives in the stored procedure.
func (s *Store) CheckRateLimit(ctx context.Context, userID, action string, maxRequests, windowSeconds int) (bool, error) {
	if err := required("user_id", userID, "action", action); err != nil {
		return false, err
	}
	if maxRequests <= 0 || windowSeconds <= 0 {
		return false, &validation.Error{Violations: []validation.Violation{{Field: "limit", Constraint: "gt", Param: "0"}}}
	}

	var allowed bool
	err := s.db.RPC(ctx, rpcCheckRateLimit, backend.Row{
		"p_user_id":        userID,
		"p_action":         action,
		"p_max_requests":   maxRequests,
		"p_window_seconds": windowSeconds,
	}, &allowed)
	if err != nil {
		return false, fmt.Errorf("check rate limit: %w", err)
	}
	return allowed, nil
}

// LogAuditEvent appends an audit entry. A failed IP lookup is recorded as
// 0.0.0.0; only the write itself can fail the call.
func (s *Store) LogAuditEvent(ctx context.Context, userID, action string, details models.Details, client models.ClientInfo) error {
	if err := required("user_id", userID, "action", action); err != nil {
		return err
	}
	if err := validation.ValidateDetails(details); err != nil {
		return err
	}
	if details == nil {
		details = models.Details{}
	}

	err := s.db.Insert(ctx, tableAuditLogs, backend.Row{
		"user_id":    userID,
		"action":     action,
		"details":    details,
		"ip_address": s.clientIP(ctx, client),
		"user_agent": client.UserAgent,
	}, nil)
	if err != nil {
		return fmt.Errorf("log audit event: %w", err)
	}
	return nil
}

// TrackEvent records an analytics event through the service procedure.
func (s *Store) TrackEvent(ctx context.Context, userID, eventType string, eventData models.Details, client models.ClientInfo) error {
	if err := required("user_id", userID, "event_type", eventType); err != nil {
		return err
	}
	if err := validation.ValidateDetails(eventData); err != nil {
		return err
	}
	if eventData == nil {
		eventData = models.Details{}
	}

	err := s.db.RPC(ctx, rpcRecordEvent, backend.Row{
		"p_user_id":    userID,
		"p_event_type": eventType,
		"p_event_data": eventData,
		"p_page_url":   client.PageURL,
		"p_user_agent": client.UserAgent,
		"p_ip_address": s.clientIP(ctx, client),
	}, nil)
	if err != nil {
		return fmt.Errorf("track event: %w", err)
	}
	return nil
}

// PruneRateLimitHits drops rate-limit bookkeeping older than retain and
// returns how many rows were removed.
func (s *Store) PruneRateLimitHits(ctx context.Context, retain time.Duration) (int, error) {
	secs := int(retain / time.Second)
	if secs <= 0 {
		return 0, &validation.Error{Violations: []validation.Violation{{Field: "retain", Constraint: "gt", Param: "0"}}}
	}
	var removed int
	if err := s.db.RPC(ctx, rpcPruneRateLimits, backend.Row{"p_older_than_seconds": secs}, &removed); err != nil {
		return 0, fmt.Errorf("prune rate limit hits: %w", err)
	}
	return removed, nil
}
