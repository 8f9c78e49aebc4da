// Package memory is a process-local backend.Store used by tests and by the
// server when DATABASE_DSN=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	tokens   map[string]models.RefreshToken
	profiles map[string]models.UserProfile
	messages []models.Message
	rooms    map[string]models.ChatRoom
	perms    map[string]models.RoomPermission
	cells    map[string]models.NoteCell

	nextTokenID uint
	fail        error
}

func New() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		tokens:   make(map[string]models.RefreshToken),
		profiles: make(map[string]models.UserProfile),
		rooms:    make(map[string]models.ChatRoom),
		perms:    make(map[string]models.RoomPermission),
		cells:    make(map[string]models.NoteCell),
	}
}

func (s *Store) Accounts() backend.AccountRepository       { return accounts{s} }
func (s *Store) Tokens() backend.TokenRepository           { return tokens{s} }
func (s *Store) Profiles() backend.ProfileRepository       { return profiles{s} }
func (s *Store) Messages() backend.MessageRepository       { return messages{s} }
func (s *Store) Rooms() backend.RoomRepository             { return rooms{s} }
func (s *Store) Permissions() backend.PermissionRepository { return permissions{s} }
func (s *Store) Cells() backend.CellRepository             { return cells{s} }

type accounts struct{ s *Store }

func (r accounts) Create(_ context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return backend.ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.s.accounts[a.ID] = *a
	return nil
}

func (r accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (r accounts) Get(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &a, nil
}

func (r accounts) List(_ context.Context) ([]models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type tokens struct{ s *Store }

func (r tokens) Save(_ context.Context, t *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.Token]; ok {
		return backend.ErrConflict
	}
	r.s.nextTokenID++
	t.ID = r.s.nextTokenID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.s.tokens[t.Token] = *t
	return nil
}

func (r tokens) Valid(_ context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[token]
	if !ok || t.RevokedAt != nil || !t.ExpiresAt.After(now) {
		return nil, backend.ErrNotFound
	}
	return &t, nil
}

func (r tokens) Revoke(_ context.Context, token string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[token]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
		r.s.tokens[token] = t
	}
	return nil
}

func (r tokens) RevokeAll(_ context.Context, accountID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.tokens {
		if t.AccountID == accountID && t.RevokedAt == nil {
			t.RevokedAt = &at
			r.s.tokens[k] = t
		}
	}
	return nil
}

type profiles struct{ s *Store }

func (r profiles) Get(_ context.Context, id string) (*models.UserProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &p, nil
}

func (r profiles) GetByUsername(_ context.Context, username string) (*models.UserProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	for _, p := range r.s.profiles {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (r profiles) List(_ context.Context) ([]models.UserProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.UserProfile, 0, len(r.s.profiles))
	for _, p := range r.s.profiles {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r profiles) Save(_ context.Context, p *models.UserProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.s.profiles[p.ID] = *p
	return nil
}

func (r profiles) Update(_ context.Context, id string, cols map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return backend.ErrNotFound
	}
	for col, v := range cols {
		switch col {
		case backend.ColIsAdmin:
			p.IsAdmin = v.(bool)
		case backend.ColIsBlocked:
			p.IsBlocked = v.(bool)
		case backend.ColBlockedReason:
			p.BlockedReason = stringPtr(v)
		case backend.ColBlockedAt:
			p.BlockedAt = timePtr(v)
		case backend.ColTimeoutUntil:
			p.TimeoutUntil = timePtr(v)
		case backend.ColTimeoutReason:
			p.TimeoutReason = stringPtr(v)
		case backend.ColTimeoutDuration:
			p.TimeoutDuration = intPtr(v)
		case backend.ColLastSeen:
			p.LastSeen = timePtr(v)
		default:
			return fmt.Errorf("memory: unknown profile column %q", col)
		}
	}
	r.s.profiles[id] = p
	return nil
}

func timePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func stringPtr(v any) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		return s
	}
	return nil
}

func intPtr(v any) *int {
	switch n := v.(type) {
	case int:
		return &n
	case *int:
		return n
	}
	return nil
}

func (r profiles) Count(_ context.Context, f backend.ProfileFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, p := range r.s.profiles {
		if f.BlockedOnly && !p.IsBlocked {
			continue
		}
		if f.SeenSince != nil && (p.LastSeen == nil || p.LastSeen.Before(*f.SeenSince)) {
			continue
		}
		n++
	}
	return n, nil
}

type messages struct{ s *Store }

func (r messages) ListSince(_ context.Context, room string, since time.Time, limit int) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.Room == room && !m.InsertedAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InsertedAt.Before(out[j].InsertedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r messages) Insert(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.InsertedAt.IsZero() {
		m.InsertedAt = time.Now().UTC()
	}
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r messages) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.messages[:0]
	var n int64
	for _, m := range r.s.messages {
		if m.InsertedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.s.messages = kept
	return n, nil
}

func (r messages) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.messages)), nil
}

type rooms struct{ s *Store }

func (r rooms) Get(_ context.Context, name string) (*models.ChatRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[name]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &room, nil
}

func (r rooms) List(_ context.Context) ([]models.ChatRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.ChatRoom, 0, len(r.s.rooms))
	for _, room := range r.s.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].Name < out[j].Name
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

func (r rooms) Insert(_ context.Context, room *models.ChatRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.Name]; ok {
		return backend.ErrConflict
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	r.s.rooms[room.Name] = *room
	return nil
}

func (r rooms) Delete(_ context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[name]; !ok {
		return backend.ErrNotFound
	}
	delete(r.s.rooms, name)
	for k, p := range r.s.perms {
		if p.RoomName == name {
			delete(r.s.perms, k)
		}
	}
	return nil
}

type permissions struct{ s *Store }

func permKey(userID, room string) string { return userID + "|" + room }

func (r permissions) ListForUser(_ context.Context, userID string) ([]models.RoomPermission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.RoomPermission
	for _, p := range r.s.perms {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomName < out[j].RoomName })
	return out, nil
}

func (r permissions) Get(_ context.Context, userID, room string) (*models.RoomPermission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.perms[permKey(userID, room)]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &p, nil
}

func (r permissions) Upsert(_ context.Context, p *models.RoomPermission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := permKey(p.UserID, p.RoomName)
	if existing, ok := r.s.perms[key]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.s.perms[key] = *p
	return nil
}

func (r permissions) Delete(_ context.Context, userID, room string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := permKey(userID, room)
	if _, ok := r.s.perms[key]; !ok {
		return backend.ErrNotFound
	}
	delete(r.s.perms, key)
	return nil
}

type cells struct{ s *Store }

func (r cells) List(_ context.Context) ([]models.NoteCell, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.NoteCell, 0, len(r.s.cells))
	for _, c := range r.s.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order == out[j].Order {
			return out[i].ID < out[j].ID
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (r cells) Find(_ context.Context, ids []string) ([]models.NoteCell, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.NoteCell
	for _, id := range ids {
		if c, ok := r.s.cells[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r cells) Upsert(_ context.Context, cs ...models.NoteCell) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range cs {
		r.s.cells[c.ID] = c
	}
	return nil
}

func (r cells) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.cells, id)
	return nil
}

// FailProfiles makes every profile read return err until called with nil.
func (s *Store) FailProfiles(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SeedDefaults inserts the default rooms, mirroring the SQL migration.
func (s *Store) SeedDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range models.DefaultRooms() {
		if _, ok := s.rooms[room.Name]; !ok {
			room.CreatedAt = time.Now().UTC()
			s.rooms[room.Name] = room
		}
	}
}
