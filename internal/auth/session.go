package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

const (
	SessionTTL    = 24 * time.Hour
	SessionCookie = "session_id"
)

// SessionStore wraps Redis for session management.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Create stores sess under a new session id.
func (s *SessionStore) Create(ctx context.Context, sess *models.Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	sid := uuid.New().String()
	err = s.rdb.Set(ctx, "session:"+sid, data, SessionTTL).Err()
	return sid, err
}

// Get returns the session, or nil if not found / expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := s.rdb.Get(ctx, "session:"+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, "session:"+sessionID).Err()
}
