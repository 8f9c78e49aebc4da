package service

import (
	"context"
	"strings"
	"sync"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"

	"github.com/rs/zerolog/log"
)

type SessionKind int

const (
	SignedIn SessionKind = iota
	SignedOut
	Refreshed
	Restored
)

func (k SessionKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Refreshed:
		return "refreshed"
	case Restored:
		return "restored"
	}
	return "unknown"
}

type SessionEvent struct {
	Kind    SessionKind
	Session *backend.Session
}

// SessionManager holds the current identity of one terminal. Listeners run
// synchronously, in registration order, after every change and never under
// the manager's lock.
type SessionManager struct {
	auth     backend.Auth
	profiles *ProfileService

	mu        sync.Mutex
	current   *backend.Session
	listeners []func(SessionEvent)
}

func NewSessionManager(auth backend.Auth, profiles *ProfileService) *SessionManager {
	return &SessionManager{auth: auth, profiles: profiles}
}

func (m *SessionManager) OnChange(fn func(SessionEvent)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *SessionManager) Current() *backend.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start restores a persisted session from its access token. An empty token
// leaves the manager signed out.
func (m *SessionManager) Start(ctx context.Context, accessToken string) (*backend.Session, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil
	}
	sess, err := m.auth.Restore(ctx, accessToken)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	m.set(ctx, sess, Restored)
	return sess, nil
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (*backend.Session, error) {
	sess, err := m.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	m.set(ctx, sess, SignedIn)
	return sess, nil
}

func (m *SessionManager) Register(ctx context.Context, email, password string) (*backend.Session, error) {
	sess, err := m.auth.SignUp(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	m.set(ctx, sess, SignedIn)
	return sess, nil
}

// Logout clears the session. Calling it while signed out does nothing.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := m.auth.SignOut(ctx, sess); err != nil {
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("sign out")
	}
	m.notify(SessionEvent{Kind: SignedOut, Session: sess})
	return nil
}

// Refresh rotates the tokens of the current session.
func (m *SessionManager) Refresh(ctx context.Context) (*backend.Session, error) {
	cur := m.Current()
	if cur == nil {
		return nil, ErrNotAuthenticated
	}
	sess, err := m.auth.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.notify(SessionEvent{Kind: Refreshed, Session: sess})
	return sess, nil
}

func (m *SessionManager) set(ctx context.Context, sess *backend.Session, kind SessionKind) {
	if m.profiles != nil {
		if _, err := m.profiles.Ensure(ctx, sess); err != nil {
			log.Warn().Err(err).Str("user_id", sess.UserID).Msg("ensure profile")
		}
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.notify(SessionEvent{Kind: kind, Session: sess})
}

func (m *SessionManager) notify(ev SessionEvent) {
	m.mu.Lock()
	listeners := make([]func(SessionEvent), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
