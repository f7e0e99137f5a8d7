package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tomlord1122/takeout/internal/cache"
)

var ErrNoSession = errors.New("no session")

// Session is a signed-in browser or device.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Sessions keeps opaque session tokens in the cache.
type Sessions struct {
	store cache.Client
	ttl   time.Duration
}

func NewSessions(store cache.Client, ttl time.Duration) *Sessions {
	return &Sessions{store: store, ttl: ttl}
}

func sessionKey(token string) string { return "session:" + token }

func (s *Sessions) Create(ctx context.Context, userID string) (*Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	now := time.Now().UTC()
	sess := &Session{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, sessionKey(sess.Token), string(b), s.ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *Sessions) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	raw, err := s.store.Get(ctx, sessionKey(token))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.store.Delete(ctx, sessionKey(token))
		return nil, ErrNoSession
	}
	return &sess, nil
}

func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.store.Delete(ctx, sessionKey(token))
}
