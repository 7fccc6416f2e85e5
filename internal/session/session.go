// Package session holds the signed-in user's bearer token and id, and tells
// interested parties when the clinic API rejects them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/dental-agenda/pkg/logging"
)

var (
	// ErrNoSession is returned when nobody is signed in.
	ErrNoSession = errors.New("session: not signed in")
	// ErrNoUserID is returned when the session carries no user id.
	ErrNoUserID = errors.New("session: user id not found, log in again")
)

// Context is what the agenda needs from the session.
type Context interface {
	Token(ctx context.Context) (string, error)
	UserID(ctx context.Context) (int64, error)
	Expire(ctx context.Context) error
}

// Record is the persisted session.
type Record struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id,omitempty"`
}

// Store persists a Record. Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// Session implements Context on top of a Store.
type Session struct {
	store  Store
	logger *logging.Logger

	mu        sync.Mutex
	nextID    int
	callbacks map[int]func()
}

// New constructs a Session.
func New(store Store, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		store:     store,
		logger:    logger,
		callbacks: make(map[int]func()),
	}
}

// Login stores a token and optional user id.
func (s *Session) Login(ctx context.Context, token string, userID int64) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("session: login: %w", ErrNoSession)
	}
	if err := s.store.Save(ctx, Record{Token: token, UserID: userID}); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	return nil
}

// Logout clears the stored session without firing unauthorized callbacks.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

// Token returns the stored bearer token.
func (s *Session) Token(ctx context.Context) (string, error) {
	rec, err := s.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("session: load: %w", err)
	}
	if rec == nil || rec.Token == "" {
		return "", ErrNoSession
	}
	return rec.Token, nil
}

// UserID returns the stored user id, falling back to the token's user_id
// claim.
func (s *Session) UserID(ctx context.Context) (int64, error) {
	rec, err := s.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: load: %w", err)
	}
	if rec == nil || rec.Token == "" {
		return 0, ErrNoSession
	}
	if rec.UserID > 0 {
		return rec.UserID, nil
	}
	return UserIDFromToken(rec.Token)
}

// OnUnauthorized registers fn to run when the session expires. The returned
// func unregisters it.
func (s *Session) OnUnauthorized(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.callbacks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.callbacks, id)
	}
}

// Expire clears the stored session and runs the unauthorized callbacks.
func (s *Session) Expire(ctx context.Context) error {
	err := s.store.Clear(ctx)
	if err != nil {
		s.logger.Warn("failed to clear expired session", "error", err)
	}

	s.mu.Lock()
	fns := make([]func(), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	if err != nil {
		return fmt.Errorf("session: expire: %w", err)
	}
	return nil
}

type ctxKey string

const sessionKey ctxKey = "dental.session"

// WithContext stores sess in ctx.
func WithContext(ctx context.Context, sess Context) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext extracts the session if present.
func FromContext(ctx context.Context) (Context, bool) {
	sess, ok := ctx.Value(sessionKey).(Context)
	return sess, ok && sess != nil
}
