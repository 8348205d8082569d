// Package api serves the rewards endpoints: profile, points, withdrawals,
// invites and analytics events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ayush/referral-rewards/backend/internal/auth"
	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/store"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

// Withdrawal rate limit: at most 3 requests per minute per user.
const (
	withdrawAction        = "withdraw"
	withdrawMaxRequests   = 3
	withdrawWindowSeconds = 60
	maxAvatarBytes        = 2 << 20
)

// RewardsStore defines the accessors the handlers call.
type RewardsStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, updates models.ProfileUpdate) error
	SetAvatar(ctx context.Context, userID, url string) error
	GetUserPoints(ctx context.Context, userID string) (*models.UserPoints, error)
	CreateWithdrawalRequest(ctx context.Context, userID string, amount decimal.Decimal, paymentMethod string) error
	GetWithdrawalHistory(ctx context.Context, userID string) ([]models.WithdrawalRequest, error)
	GenerateInviteLink(ctx context.Context, userID string) (*models.InviteLink, error)
	GetInviteLinks(ctx context.Context, userID string) ([]models.InviteLink, error)
	ValidateInviteCode(ctx context.Context, code string) (*models.InviteLink, error)
	CheckRateLimit(ctx context.Context, userID, action string, maxRequests, windowSeconds int) (bool, error)
	LogAuditEvent(ctx context.Context, userID, action string, details models.Details, client models.ClientInfo) error
	TrackEvent(ctx context.Context, userID, eventType string, eventData models.Details, client models.ClientInfo) error
}

// AvatarStore defines the interface for avatar file storage.
type AvatarStore interface {
	Upload(ctx context.Context, userID string, data []byte, contentType string) (store.Avatar, error)
	Remove(ctx context.Context, key string) error
}

// Handler holds rewards HTTP handlers.
type Handler struct {
	store   RewardsStore
	avatars AvatarStore
	logger  *slog.Logger
}

// NewHandler builds the handlers. avatars may be nil when storage is not
// configured.
func NewHandler(s RewardsStore, avatars AvatarStore, logger *slog.Logger) *Handler {
	return &Handler{store: s, avatars: avatars, logger: logger}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps store errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var verr *validation.Error
	var apiErr *backend.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "violations": verr.Violations})
	case errors.Is(err, backend.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &apiErr):
		h.logger.Error(op, "error", err, "code", apiErr.Code)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend request failed"})
	default:
		h.logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func userID(r *http.Request) string {
	sess, ok := auth.SessionFrom(r.Context())
	if !ok {
		return ""
	}
	return sess.UserID
}

// GetProfile returns the current user's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProfile(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile applies a partial update to the current user's profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var updates models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := h.store.UpdateProfile(r.Context(), userID(r), updates); err != nil {
		h.writeError(w, "update profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar stores the request body as the user's avatar.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		http.Error(w, `{"error":"avatar storage not configured"}`, http.StatusServiceUnavailable)
		return
	}
	ct := strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
	if !store.AvatarContentTypeAllowed(ct) {
		http.Error(w, `{"error":"unsupported image type"}`, http.StatusUnsupportedMediaType)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBytes))
	if err != nil {
		http.Error(w, `{"error":"image too large"}`, http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		http.Error(w, `{"error":"empty body"}`, http.StatusBadRequest)
		return
	}

	uid := userID(r)
	avatar, err := h.avatars.Upload(r.Context(), uid, data, ct)
	if err != nil {
		h.logger.Error("upload avatar", "user_id", uid, "error", err)
		http.Error(w, `{"error":"upload failed"}`, http.StatusBadGateway)
		return
	}
	if err := h.store.SetAvatar(r.Context(), uid, avatar.URL); err != nil {
		if rmErr := h.avatars.Remove(r.Context(), avatar.Key); rmErr != nil {
			h.logger.Warn("remove orphaned avatar", "key", avatar.Key, "error", rmErr)
		}
		h.writeError(w, "set avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": avatar.URL})
}

// GetPoints returns the current user's balance.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	pts, err := h.store.GetUserPoints(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, "get points", err)
		return
	}
	writeJSON(w, http.StatusOK, pts)
}

// CreateWithdrawal validates the payout, checks the rate limit and records
// a pending withdrawal.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawalInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	// Rejected input must not use up a rate-limit slot.
	if err := validation.ValidateWithdrawal(req); err != nil {
		h.writeError(w, "create withdrawal", err)
		return
	}

	uid := userID(r)
	allowed, err := h.store.CheckRateLimit(r.Context(), uid, withdrawAction, withdrawMaxRequests, withdrawWindowSeconds)
	if err != nil {
		h.writeError(w, "check rate limit", err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many withdrawal requests, try again later"})
		return
	}

	method := req.PaymentMethod.Label()
	if err := h.store.CreateWithdrawalRequest(r.Context(), uid, req.Amount, method); err != nil {
		h.writeError(w, "create withdrawal", err)
		return
	}

	details := models.Details{"amount": req.Amount.String(), "payment_method": method}
	if err := h.store.LogAuditEvent(r.Context(), uid, "withdrawal_requested", details, auth.ClientInfo(r)); err != nil {
		h.logger.Error("audit withdrawal_requested", "user_id", uid, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": models.WithdrawalPending})
}

// ListWithdrawals returns the current user's withdrawal history.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.GetWithdrawalHistory(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, "list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateInvite generates a new invite link.
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	link, err := h.store.GenerateInviteLink(r.Context(), uid)
	if err != nil {
		h.writeError(w, "create invite", err)
		return
	}
	if err := h.store.LogAuditEvent(r.Context(), uid, "invite_created", models.Details{"code": link.Code}, auth.ClientInfo(r)); err != nil {
		h.logger.Error("audit invite_created", "user_id", uid, "error", err)
	}
	writeJSON(w, http.StatusCreated, link)
}

// ListInvites returns the current user's invite links with invitees.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.GetInviteLinks(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, "list invites", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// ValidateInvite reports whether an invite code exists and is unexpired.
func (h *Handler) ValidateInvite(w http.ResponseWriter, r *http.Request) {
	link, err := h.store.ValidateInviteCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, "validate invite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": link.Code, "expires_at": link.ExpiresAt})
}

// TrackEvent records an analytics event for the current user.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := h.store.TrackEvent(r.Context(), userID(r), req.EventType, req.EventData, auth.ClientInfo(r)); err != nil {
		h.writeError(w, "track event", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
