// Package backendtest holds a behavioural suite every backend.Store
// implementation must pass.
package backendtest

import (
	"context"
	"testing"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite exercises store. newStore must return an empty, migrated store
// with the default rooms seeded.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) backend.Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("rooms and permissions", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("cells", func(t *testing.T) { testCells(t, newStore(t)) })
}

func testAccounts(t *testing.T, s backend.Store) {
	ctx := context.Background()
	a := &models.Account{Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, s.Accounts().Create(ctx, a))
	require.NotEmpty(t, a.ID)

	got, err := s.Accounts().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	err = s.Accounts().Create(ctx, &models.Account{Email: "alice@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, backend.ErrConflict)

	_, err = s.Accounts().Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, backend.ErrNotFound)

	all, err := s.Accounts().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice@example.com", all[0].Email)
}

func testTokens(t *testing.T, s backend.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.Tokens().Save(ctx, &models.RefreshToken{AccountID: "acc", Token: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Tokens().Save(ctx, &models.RefreshToken{AccountID: "acc", Token: "old", ExpiresAt: now.Add(-time.Hour)}))

	_, err := s.Tokens().Valid(ctx, "live", now)
	require.NoError(t, err)
	_, err = s.Tokens().Valid(ctx, "old", now)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, s.Tokens().Revoke(ctx, "live", now))
	_, err = s.Tokens().Valid(ctx, "live", now)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, s.Tokens().Save(ctx, &models.RefreshToken{AccountID: "acc", Token: "a1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Tokens().Save(ctx, &models.RefreshToken{AccountID: "acc", Token: "a2", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Tokens().Save(ctx, &models.RefreshToken{AccountID: "other", Token: "b1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Tokens().RevokeAll(ctx, "acc", now))
	for _, tok := range []string{"a1", "a2"} {
		_, err = s.Tokens().Valid(ctx, tok, now)
		assert.ErrorIs(t, err, backend.ErrNotFound, tok)
	}
	_, err = s.Tokens().Valid(ctx, "b1", now)
	assert.NoError(t, err, "other accounts keep their tokens")
}

func testProfiles(t *testing.T, s backend.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	seen := now.Add(-time.Hour)
	stale := now.Add(-48 * time.Hour)
	reason := "spam"

	older := &models.UserProfile{ID: uuid.NewString(), Email: "a@x.io", Username: "a", LastSeen: &seen, CreatedAt: now.Add(-time.Minute)}
	newer := &models.UserProfile{ID: uuid.NewString(), Email: "b@x.io", Username: "b", LastSeen: &stale, IsBlocked: true, BlockedReason: &reason, CreatedAt: now}
	require.NoError(t, s.Profiles().Save(ctx, older))
	require.NoError(t, s.Profiles().Save(ctx, newer))

	list, err := s.Profiles().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Username, "newest first")

	since := now.Add(-24 * time.Hour)
	active, err := s.Profiles().Count(ctx, backend.ProfileFilter{SeenSince: &since})
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
	blocked, err := s.Profiles().Count(ctx, backend.ProfileFilter{BlockedOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, blocked)

	newer.IsBlocked = false
	newer.BlockedReason = nil
	require.NoError(t, s.Profiles().Save(ctx, newer))
	got, err := s.Profiles().GetByUsername(ctx, "b")
	require.NoError(t, err)
	assert.False(t, got.IsBlocked, "unblock persisted")
	assert.Nil(t, got.BlockedReason)

	_, err = s.Profiles().Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, backend.ErrNotFound)

	until := now.Add(time.Hour)
	require.NoError(t, s.Profiles().Update(ctx, older.ID, map[string]any{
		backend.ColIsBlocked:       true,
		backend.ColBlockedReason:   "abuse",
		backend.ColTimeoutUntil:    until,
		backend.ColTimeoutDuration: 3600,
	}))
	require.NoError(t, s.Profiles().Update(ctx, older.ID, map[string]any{backend.ColLastSeen: now}))
	got, err = s.Profiles().Get(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked, "last_seen write keeps other columns")
	require.NotNil(t, got.BlockedReason)
	assert.Equal(t, "abuse", *got.BlockedReason)
	require.NotNil(t, got.TimeoutUntil)
	assert.WithinDuration(t, until, *got.TimeoutUntil, time.Second)
	require.NotNil(t, got.LastSeen)
	assert.WithinDuration(t, now, *got.LastSeen, time.Second)
	assert.Equal(t, "a@x.io", got.Email)

	require.NoError(t, s.Profiles().Update(ctx, older.ID, map[string]any{
		backend.ColTimeoutUntil:    nil,
		backend.ColTimeoutDuration: nil,
	}))
	got, err = s.Profiles().Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TimeoutUntil)
	assert.Nil(t, got.TimeoutDuration)
	assert.True(t, got.IsBlocked)

	err = s.Profiles().Update(ctx, uuid.NewString(), map[string]any{backend.ColLastSeen: now})
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func testMessages(t *testing.T, s backend.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	insert := func(room, text string, at time.Time) {
		require.NoError(t, s.Messages().Insert(ctx, &models.Message{Room: room, Username: "a", Text: text, InsertedAt: at}))
	}
	insert("general", "ancient", now.Add(-30*time.Hour))
	insert("general", "first", now.Add(-2*time.Hour))
	insert("general", "second", now.Add(-time.Hour))
	insert("random", "elsewhere", now.Add(-time.Hour))

	msgs, err := s.Messages().ListSince(ctx, "general", now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)

	n, err := s.Messages().DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	total, err := s.Messages().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func testRooms(t *testing.T, s backend.Store) {
	ctx := context.Background()
	general, err := s.Rooms().Get(ctx, models.ProtectedRoom)
	require.NoError(t, err)
	assert.True(t, general.IsPublic)

	require.NoError(t, s.Rooms().Insert(ctx, &models.ChatRoom{Name: "alpha", DisplayName: "Alpha"}))
	assert.ErrorIs(t, s.Rooms().Insert(ctx, &models.ChatRoom{Name: "alpha", DisplayName: "Alpha"}), backend.ErrConflict)

	rooms, err := s.Rooms().List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rooms), 2)
	assert.Equal(t, "Alpha", rooms[0].DisplayName, "ordered by display name")

	p := &models.RoomPermission{UserID: "u1", RoomName: "alpha", CanRead: true}
	require.NoError(t, s.Permissions().Upsert(ctx, p))
	firstID := p.ID
	p2 := &models.RoomPermission{UserID: "u1", RoomName: "alpha", CanRead: true, CanWrite: true}
	require.NoError(t, s.Permissions().Upsert(ctx, p2))
	assert.Equal(t, firstID, p2.ID, "upsert keeps the row")

	perms, err := s.Permissions().ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.True(t, perms[0].CanWrite)

	require.NoError(t, s.Rooms().Delete(ctx, "alpha"))
	_, err = s.Permissions().Get(ctx, "u1", "alpha")
	assert.ErrorIs(t, err, backend.ErrNotFound, "grants go with the room")
	assert.ErrorIs(t, s.Rooms().Delete(ctx, "alpha"), backend.ErrNotFound)
}

func testCells(t *testing.T, s backend.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	a := models.NoteCell{ID: uuid.NewString(), Content: "a", Order: 2, UpdatedAt: now}
	b := models.NoteCell{ID: uuid.NewString(), Content: "b", Order: 1, UpdatedAt: now}
	require.NoError(t, s.Cells().Upsert(ctx, a, b))

	cells, err := s.Cells().List(ctx)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "b", cells[0].Content)

	a.Order, b.Order = 1, 2
	a.Content = "a2"
	require.NoError(t, s.Cells().Upsert(ctx, a, b))
	cells, err = s.Cells().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", cells[0].Content)

	found, err := s.Cells().Find(ctx, []string{a.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, s.Cells().Delete(ctx, a.ID))
	cells, err = s.Cells().List(ctx)
	require.NoError(t, err)
	assert.Len(t, cells, 1)
}
