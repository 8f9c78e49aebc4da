package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/rs/zerolog/log"
)

const touchInterval = 5 * time.Minute

// ProfileService creates profile rows lazily and keeps last_seen fresh.
type ProfileService struct {
	store backend.Store
	Now   func() time.Time

	mu      sync.Mutex
	touched map[string]time.Time
}

func NewProfileService(store backend.Store) *ProfileService {
	return &ProfileService{store: store, Now: time.Now, touched: make(map[string]time.Time)}
}

// Ensure returns the profile for sess, creating it on first use, and records
// the visit in last_seen.
func (s *ProfileService) Ensure(ctx context.Context, sess *backend.Session) (*models.UserProfile, error) {
	now := s.Now().UTC()
	profiles := s.store.Profiles()
	p, err := profiles.Get(ctx, sess.UserID)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		p = &models.UserProfile{
			ID:        sess.UserID,
			Email:     sess.Email,
			Username:  sess.Username(),
			LastSeen:  &now,
			CreatedAt: now,
		}
		err = profiles.Save(ctx, p)
	case err == nil:
		p.LastSeen = &now
		err = profiles.Update(ctx, p.ID, map[string]any{backend.ColLastSeen: now})
	}
	if err != nil {
		return nil, dataErr("ensure profile", err)
	}
	s.mu.Lock()
	s.touched[sess.UserID] = now
	s.mu.Unlock()
	return p, nil
}

// Touch writes last_seen, and only last_seen, at most once per touchInterval.
// Failures are logged.
func (s *ProfileService) Touch(ctx context.Context, userID string) {
	now := s.Now().UTC()
	s.mu.Lock()
	if last, ok := s.touched[userID]; ok && now.Sub(last) < touchInterval {
		s.mu.Unlock()
		return
	}
	s.touched[userID] = now
	s.mu.Unlock()

	err := s.store.Profiles().Update(ctx, userID, map[string]any{backend.ColLastSeen: now})
	switch {
	case errors.Is(err, backend.ErrNotFound):
		log.Debug().Str("user_id", userID).Msg("touch profile: no row")
	case err != nil:
		log.Warn().Err(err).Str("user_id", userID).Msg("touch profile")
	}
}

// AdminResolver answers whether an identity holds the admin flag.
type AdminResolver struct {
	store backend.Store
}

func NewAdminResolver(store backend.Store) *AdminResolver {
	return &AdminResolver{store: store}
}

// IsAdmin is true only for an existing profile with the flag set. Lookup
// failures are logged and read as false.
func (r *AdminResolver) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	p, err := r.store.Profiles().Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("admin status lookup")
		}
		return false
	}
	return p.IsAdmin
}
