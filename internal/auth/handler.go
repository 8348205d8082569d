package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/models"
	"github.com/ayush/referral-rewards/backend/internal/validation"
)

// AccountStore is the subset of the rewards store auth needs.
type AccountStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, updates models.ProfileUpdate) error
	ValidateInviteCode(ctx context.Context, code string) (*models.InviteLink, error)
	LogAuditEvent(ctx context.Context, userID, action string, details models.Details, client models.ClientInfo) error
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	auth     backend.Authenticator
	accounts AccountStore
	sessions *SessionStore
	logger   *slog.Logger
}

func NewHandler(auth backend.Authenticator, accounts AccountStore, sessions *SessionStore, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, accounts: accounts, sessions: sessions, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Register validates the payload, signs the user up and starts a session.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateUser(req); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "violations": verr.Violations})
			return
		}
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	var invite *models.InviteLink
	if req.InviteCode != "" {
		link, err := h.accounts.ValidateInviteCode(r.Context(), req.InviteCode)
		switch {
		case errors.Is(err, backend.ErrNoRows):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":      "validation failed",
				"violations": []validation.Violation{{Field: "invite_code", Constraint: "valid"}},
			})
			return
		case err != nil:
			h.logger.Error("validate invite", "error", err)
			http.Error(w, `{"error":"invite check failed"}`, http.StatusBadGateway)
			return
		}
		invite = link
	}

	sess, err := h.auth.SignUp(r.Context(), req)
	if err != nil {
		h.logger.Warn("sign up failed", "error", err)
		var apiErr *backend.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			http.Error(w, `{"error":"user already exists or invalid sign-up"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error":"sign-up failed"}`, http.StatusBadGateway)
		return
	}

	var details models.Details
	if invite != nil {
		details = models.Details{"invite_code": invite.Code}
		h.attachInvite(r.Context(), sess, invite)
	}

	if !h.startSession(w, r, sess) {
		return
	}
	if err := h.accounts.LogAuditEvent(r.Context(), sess.UserID, "user_registered", details, ClientInfo(r)); err != nil {
		h.logger.Error("audit user_registered", "user_id", sess.UserID, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": sess.UserID, "email": sess.Email})
}

// attachInvite records which invite a new profile signed up through. The
// account already exists, so a failure here is only logged.
func (h *Handler) attachInvite(ctx context.Context, sess *models.Session, invite *models.InviteLink) {
	ctx = backend.WithAccessToken(ctx, sess.AccessToken)
	if err := h.accounts.UpdateProfile(ctx, sess.UserID, models.ProfileUpdate{"invite_link_id": invite.ID}); err != nil {
		h.logger.Warn("attach invite", "user_id", sess.UserID, "invite_link_id", invite.ID, "error", err)
	}
}

// Login authenticates a user and creates a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	sess, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("sign in failed", "error", err)
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	if !h.startSession(w, r, sess) {
		return
	}
	if err := h.accounts.LogAuditEvent(r.Context(), sess.UserID, "user_logged_in", nil, ClientInfo(r)); err != nil {
		h.logger.Error("audit user_logged_in", "user_id", sess.UserID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": sess.UserID, "email": sess.Email})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, sess *models.Session) bool {
	sid, err := h.sessions.Create(r.Context(), sess)
	if err != nil {
		h.logger.Error("session create", "error", err)
		http.Error(w, `{"error":"session creation failed"}`, http.StatusInternalServerError)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL / time.Second),
	})
	return true
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		h.sessions.Delete(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"logged out"}`))
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	profile, err := h.accounts.GetProfile(r.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, backend.ErrNoRows) {
			h.logger.Error("get profile", "user_id", sess.UserID, "error", err)
		}
		http.Error(w, `{"error":"profile not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
