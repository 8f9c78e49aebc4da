package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/metrics"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// TimeoutDurations are the durations, in seconds, an operator may pick.
var TimeoutDurations = []int{300, 900, 1800, 3600, 7200, 14400, 86400}

type timeoutInput struct {
	Seconds int    `validate:"oneof=300 900 1800 3600 7200 14400 86400"`
	Reason  string `validate:"required"`
}

var timeoutFieldMessages = map[string]string{
	"Seconds": "timeout duration must be one of 5m, 15m, 30m, 1h, 2h, 4h, 24h",
	"Reason":  "a reason is required",
}

const (
	activeWindow       = 24 * time.Hour
	defaultBlockReason = "Admin action"
)

type Stats struct {
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users"`
	TotalMessages int64 `json:"total_messages"`
	BlockedUsers  int64 `json:"blocked_users"`
}

// AdminConsole carries the operator actions. Callers are expected to have
// checked the admin flag already.
type AdminConsole struct {
	store backend.Store
	Now   func() time.Time
}

func NewAdminConsole(store backend.Store) *AdminConsole {
	return &AdminConsole{store: store, Now: time.Now}
}

// Stats runs the four aggregates independently.
func (a *AdminConsole) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var err error
	profiles := a.store.Profiles()
	if st.TotalUsers, err = profiles.Count(ctx, backend.ProfileFilter{}); err != nil {
		return nil, dataErr("count users", err)
	}
	since := a.Now().UTC().Add(-activeWindow)
	if st.ActiveUsers, err = profiles.Count(ctx, backend.ProfileFilter{SeenSince: &since}); err != nil {
		return nil, dataErr("count active users", err)
	}
	if st.TotalMessages, err = a.store.Messages().Count(ctx); err != nil {
		return nil, dataErr("count messages", err)
	}
	if st.BlockedUsers, err = profiles.Count(ctx, backend.ProfileFilter{BlockedOnly: true}); err != nil {
		return nil, dataErr("count blocked users", err)
	}
	return &st, nil
}

func (a *AdminConsole) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	out, err := a.store.Profiles().List(ctx)
	if err != nil {
		return nil, dataErr("list users", err)
	}
	return out, nil
}

func (a *AdminConsole) profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := a.store.Profiles().Get(ctx, userID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, dataErr("get user", err)
	}
	return p, nil
}

func (a *AdminConsole) byUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	p, err := a.store.Profiles().GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, dataErr("find user", err)
	}
	return p, nil
}

func (a *AdminConsole) save(ctx context.Context, op string, p *models.UserProfile) error {
	if err := a.store.Profiles().Save(ctx, p); err != nil {
		return dataErr(op, err)
	}
	log.Info().Str("op", op).Str("user_id", p.ID).Msg("admin action")
	return nil
}

// update writes cols of one profile and returns the stored row. Only the named
// columns change, so a concurrent last_seen write cannot undo the action.
func (a *AdminConsole) update(ctx context.Context, op, userID string, cols map[string]any) (*models.UserProfile, error) {
	err := a.store.Profiles().Update(ctx, userID, cols)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, dataErr(op, err)
	}
	log.Info().Str("op", op).Str("user_id", userID).Msg("admin action")
	return a.profile(ctx, userID)
}

// Block sets the blocked flag and revokes the account's refresh tokens, so a
// blocked user cannot extend a session past its access token.
func (a *AdminConsole) Block(ctx context.Context, userID, reason string) (*models.UserProfile, error) {
	now := a.Now().UTC()
	r := strings.TrimSpace(reason)
	if r == "" {
		r = defaultBlockReason
	}
	p, err := a.update(ctx, "block", userID, map[string]any{
		backend.ColIsBlocked:     true,
		backend.ColBlockedAt:     now,
		backend.ColBlockedReason: r,
	})
	if err != nil {
		return nil, err
	}
	if err := a.store.Tokens().RevokeAll(ctx, userID, now); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("revoke refresh tokens of blocked user")
	}
	return p, nil
}

func (a *AdminConsole) Unblock(ctx context.Context, userID string) (*models.UserProfile, error) {
	return a.update(ctx, "unblock", userID, map[string]any{
		backend.ColIsBlocked:     false,
		backend.ColBlockedAt:     nil,
		backend.ColBlockedReason: nil,
	})
}

// Timeout suspends sending for seconds. The reason is mandatory and seconds
// must be one of TimeoutDurations.
func (a *AdminConsole) Timeout(ctx context.Context, userID string, seconds int, reason string) (*models.UserProfile, error) {
	in := timeoutInput{Seconds: seconds, Reason: strings.TrimSpace(reason)}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0].Field()
			return nil, &ValidationError{Field: f, Message: timeoutFieldMessages[f]}
		}
		return nil, err
	}
	until := a.Now().UTC().Add(time.Duration(seconds) * time.Second)
	return a.update(ctx, "timeout", userID, map[string]any{
		backend.ColTimeoutUntil:    until,
		backend.ColTimeoutReason:   in.Reason,
		backend.ColTimeoutDuration: in.Seconds,
	})
}

func (a *AdminConsole) RemoveTimeout(ctx context.Context, userID string) (*models.UserProfile, error) {
	return a.update(ctx, "remove_timeout", userID, map[string]any{
		backend.ColTimeoutUntil:    nil,
		backend.ColTimeoutReason:   nil,
		backend.ColTimeoutDuration: nil,
	})
}

func (a *AdminConsole) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	out, err := a.store.Rooms().List(ctx)
	if err != nil {
		return nil, dataErr("list rooms", err)
	}
	return out, nil
}

func (a *AdminConsole) CreateRoom(ctx context.Context, spec RoomSpec, creatorID string) (*models.ChatRoom, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	room := &models.ChatRoom{
		Name:        spec.Name,
		DisplayName: strings.TrimSpace(spec.DisplayName),
		Description: strings.TrimSpace(spec.Description),
		IsPublic:    spec.IsPublic,
		CreatedAt:   a.Now().UTC(),
	}
	if creatorID != "" {
		room.CreatedBy = &creatorID
	}
	if err := a.store.Rooms().Insert(ctx, room); err != nil {
		return nil, dataErr("create room", err)
	}
	log.Info().Str("room", room.Name).Bool("public", room.IsPublic).Msg("room created")
	return room, nil
}

// DeleteRoom removes a room and its permissions. The protected room is
// refused before confirmation is even considered.
func (a *AdminConsole) DeleteRoom(ctx context.Context, name string, confirmed bool) error {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, models.ProtectedRoom) {
		return ErrProtectedRoom
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	err := a.store.Rooms().Delete(ctx, name)
	if errors.Is(err, backend.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return dataErr("delete room", err)
	}
	log.Info().Str("room", name).Msg("room deleted")
	return nil
}

// GrantAccess gives username read and write rights on room.
func (a *AdminConsole) GrantAccess(ctx context.Context, username, room string, read, write bool) (*models.RoomPermission, error) {
	p, err := a.byUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.Rooms().Get(ctx, room); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, dataErr("get room", err)
	}
	perm := &models.RoomPermission{UserID: p.ID, RoomName: room, CanRead: read, CanWrite: write}
	if err := a.store.Permissions().Upsert(ctx, perm); err != nil {
		return nil, dataErr("grant access", err)
	}
	return perm, nil
}

func (a *AdminConsole) RevokeAccess(ctx context.Context, username, room string) error {
	p, err := a.byUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := a.store.Permissions().Delete(ctx, p.ID, room); err != nil && !errors.Is(err, backend.ErrNotFound) {
		return dataErr("revoke access", err)
	}
	return nil
}

// MakeAdmin flips the admin flag of username.
func (a *AdminConsole) MakeAdmin(ctx context.Context, username string) (*models.UserProfile, error) {
	p, err := a.byUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin {
		return nil, ErrAlreadyAdmin
	}
	return a.update(ctx, "make_admin", p.ID, map[string]any{backend.ColIsAdmin: true})
}

// PromoteEmail makes the account registered under email an admin, creating
// its profile when missing. It is the bootstrap path for the first operator.
func (a *AdminConsole) PromoteEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	acc, err := a.store.Accounts().GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, dataErr("find account", err)
	}
	_, err = a.store.Profiles().Get(ctx, acc.ID)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		p := newProfile(acc, a.Now().UTC())
		p.IsAdmin = true
		return p, a.save(ctx, "promote", p)
	case err != nil:
		return nil, dataErr("get user", err)
	}
	return a.update(ctx, "promote", acc.ID, map[string]any{backend.ColIsAdmin: true})
}

// FixProfiles creates the missing profile rows of registered accounts and
// returns how many were created.
func (a *AdminConsole) FixProfiles(ctx context.Context) (int, error) {
	accounts, err := a.store.Accounts().List(ctx)
	if err != nil {
		return 0, dataErr("list accounts", err)
	}
	created := 0
	for i := range accounts {
		_, err := a.store.Profiles().Get(ctx, accounts[i].ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, backend.ErrNotFound) {
			return created, dataErr("get user", err)
		}
		p := newProfile(&accounts[i], a.Now().UTC())
		if err := a.store.Profiles().Save(ctx, p); err != nil {
			return created, dataErr("create profile", err)
		}
		created++
	}
	return created, nil
}

// SeedRooms inserts the default rooms that do not exist yet.
func (a *AdminConsole) SeedRooms(ctx context.Context) (int, error) {
	created := 0
	for _, r := range models.DefaultRooms() {
		if _, err := a.store.Rooms().Get(ctx, r.Name); err == nil {
			continue
		} else if !errors.Is(err, backend.ErrNotFound) {
			return created, dataErr("get room", err)
		}
		r.CreatedAt = a.Now().UTC()
		if err := a.store.Rooms().Insert(ctx, &r); err != nil {
			return created, dataErr("seed room", err)
		}
		created++
	}
	return created, nil
}

func newProfile(acc *models.Account, now time.Time) *models.UserProfile {
	return &models.UserProfile{
		ID:        acc.ID,
		Email:     acc.Email,
		Username:  backend.UsernameFromEmail(acc.Email),
		CreatedAt: now,
	}
}

// Cleanup deletes every message older than retention, in all rooms.
func (a *AdminConsole) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := a.store.Messages().DeleteBefore(ctx, a.Now().UTC().Add(-retention))
	if err != nil {
		return 0, dataErr("cleanup messages", err)
	}
	metrics.MessagesPurgedTotal.Add(float64(n))
	log.Info().Int64("deleted", n).Msg("admin cleanup")
	return n, nil
}
