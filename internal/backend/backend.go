// Package backend declares the contracts of the services the chat consumes:
// an auth provider, a table store and a realtime change feed. A Client bundles
// one implementation of each and is handed to every component at startup.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Session is an authenticated identity as issued by the auth provider.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Username derives the display name from the email local part.
func (s *Session) Username() string {
	return UsernameFromEmail(s.Email)
}

// UsernameFromEmail returns everything before the first '@'.
func UsernameFromEmail(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}
	return email
}

type Auth interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, s *Session) error
	// Restore resolves a persisted access token into a live session.
	Restore(ctx context.Context, accessToken string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
}

type TokenRepository interface {
	Save(ctx context.Context, t *models.RefreshToken) error
	// Valid returns the token when it is neither revoked nor expired at now.
	Valid(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string, at time.Time) error
	RevokeAll(ctx context.Context, accountID string, at time.Time) error
}

type ProfileFilter struct {
	SeenSince   *time.Time
	BlockedOnly bool
}

// Profile columns accepted by ProfileRepository.Update. A nil value clears a
// nullable column.
const (
	ColIsAdmin         = "is_admin"
	ColIsBlocked       = "is_blocked"
	ColBlockedReason   = "blocked_reason"
	ColBlockedAt       = "blocked_at"
	ColTimeoutUntil    = "timeout_until"
	ColTimeoutReason   = "timeout_reason"
	ColTimeoutDuration = "timeout_duration"
	ColLastSeen        = "last_seen"
)

type ProfileRepository interface {
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	GetByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	// List returns profiles newest first.
	List(ctx context.Context) ([]models.UserProfile, error)
	Save(ctx context.Context, p *models.UserProfile) error
	// Update writes only the given columns of the row with id, leaving every
	// other column as stored. It returns ErrNotFound when no row matches.
	Update(ctx context.Context, id string, cols map[string]any) error
	Count(ctx context.Context, f ProfileFilter) (int64, error)
}

type MessageRepository interface {
	// ListSince returns the room's messages inserted at or after since, oldest first.
	ListSince(ctx context.Context, room string, since time.Time, limit int) ([]models.Message, error)
	Insert(ctx context.Context, m *models.Message) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type RoomRepository interface {
	Get(ctx context.Context, name string) (*models.ChatRoom, error)
	// List returns all rooms ordered by display name.
	List(ctx context.Context) ([]models.ChatRoom, error)
	Insert(ctx context.Context, r *models.ChatRoom) error
	Delete(ctx context.Context, name string) error
}

type PermissionRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.RoomPermission, error)
	Get(ctx context.Context, userID, room string) (*models.RoomPermission, error)
	Upsert(ctx context.Context, p *models.RoomPermission) error
	Delete(ctx context.Context, userID, room string) error
}

type CellRepository interface {
	// List returns cells ordered by their order field.
	List(ctx context.Context) ([]models.NoteCell, error)
	Find(ctx context.Context, ids []string) ([]models.NoteCell, error)
	Upsert(ctx context.Context, cells ...models.NoteCell) error
	Delete(ctx context.Context, id string) error
}

// Store groups the table repositories.
type Store interface {
	Accounts() AccountRepository
	Tokens() TokenRepository
	Profiles() ProfileRepository
	Messages() MessageRepository
	Rooms() RoomRepository
	Permissions() PermissionRepository
	Cells() CellRepository
}

// Client is the explicitly constructed handle to the backend.
type Client struct {
	Auth     Auth
	Store    Store
	Realtime Realtime
}
