package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomNames(rooms []models.ChatRoom) []string {
	out := make([]string, len(rooms))
	for i, r := range rooms {
		out[i] = r.Name
	}
	return out
}

func TestAdmin_PrivateRoomVisibleAfterGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root := e.admin(t, "root@example.com")
	erin := e.user(t, "erin@example.com")

	room, err := e.console.CreateRoom(ctx, RoomSpec{Name: "general2", DisplayName: "General2", IsPublic: false}, root.UserID)
	require.NoError(t, err)
	assert.Equal(t, root.UserID, *room.CreatedBy)

	before, err := e.rooms.ListAccessible(ctx, erin.UserID)
	require.NoError(t, err)
	assert.NotContains(t, roomNames(before), "general2")

	_, err = e.console.GrantAccess(ctx, "erin", "general2", true, true)
	require.NoError(t, err)

	after, err := e.rooms.ListAccessible(ctx, erin.UserID)
	require.NoError(t, err)
	assert.Contains(t, roomNames(after), "general2")

	require.NoError(t, e.console.RevokeAccess(ctx, "erin", "general2"))
	revoked, err := e.rooms.ListAccessible(ctx, erin.UserID)
	require.NoError(t, err)
	assert.NotContains(t, roomNames(revoked), "general2")

	all, err := e.rooms.ListAccessible(ctx, root.UserID)
	require.NoError(t, err)
	assert.Contains(t, roomNames(all), "general2")
}

func TestAdmin_DeleteRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		room      string
		confirmed bool
		wantErr   error
	}{
		{"general refused", "general", true, ErrProtectedRoom},
		{"general refused any case", "General", true, ErrProtectedRoom},
		{"needs confirmation", "random", false, ErrConfirmationRequired},
		{"missing room", "nope", true, ErrRoomNotFound},
		{"confirmed", "random", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.console.DeleteRoom(ctx, tt.room, tt.confirmed)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	rooms, err := e.console.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, roomNames(rooms))
}

func TestAdmin_CreateRoomValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.console.CreateRoom(ctx, RoomSpec{Name: "has space", DisplayName: "Bad"}, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Name", verr.Field)

	_, err = e.console.CreateRoom(ctx, RoomSpec{Name: "general", DisplayName: "Again"}, "")
	var derr *DataError
	assert.ErrorAs(t, err, &derr)
}

func TestAdmin_TimeoutValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	frank := e.user(t, "frank@example.com")

	tests := []struct {
		name    string
		seconds int
		reason  string
		field   string
	}{
		{"empty reason", 3600, "  ", "Reason"},
		{"unlisted duration", 60, "spam", "Seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.console.Timeout(ctx, frank.UserID, tt.seconds, tt.reason)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	for _, secs := range TimeoutDurations {
		_, err := e.console.Timeout(ctx, frank.UserID, secs, "flood")
		assert.NoError(t, err, "duration %d", secs)
	}

	p, err := e.console.RemoveTimeout(ctx, frank.UserID)
	require.NoError(t, err)
	assert.Nil(t, p.TimeoutUntil)
	assert.Nil(t, p.TimeoutReason)
	assert.Nil(t, p.TimeoutDuration)

	_, err = e.console.Timeout(ctx, "missing", 300, "x")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdmin_Stats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	clk := newClock()
	e.console.Now = clk.Now

	a := e.user(t, "a@example.com")
	e.user(t, "b@example.com")
	c := e.user(t, "c@example.com")

	stale := clk.Now().Add(-48 * time.Hour)
	p, err := e.client.Store.Profiles().Get(ctx, c.UserID)
	require.NoError(t, err)
	p.LastSeen = &stale
	require.NoError(t, e.client.Store.Profiles().Save(ctx, p))
	fresh := clk.Now().Add(-time.Hour)
	p, err = e.client.Store.Profiles().Get(ctx, a.UserID)
	require.NoError(t, err)
	p.LastSeen = &fresh
	require.NoError(t, e.client.Store.Profiles().Save(ctx, p))

	_, err = e.console.Block(ctx, a.UserID, "")
	require.NoError(t, err)
	require.NoError(t, e.client.Store.Messages().Insert(ctx, &models.Message{Room: "general", Username: "a", Text: "x"}))

	st, err := e.console.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalUsers)
	assert.Equal(t, int64(1), st.TotalMessages)
	assert.Equal(t, int64(1), st.BlockedUsers)
	assert.Equal(t, int64(2), st.ActiveUsers, "b was seen at sign-up, c two days ago")
}

func TestAdmin_MakeAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	gina := e.user(t, "gina@example.com")

	_, err := e.console.MakeAdmin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	p, err := e.console.MakeAdmin(ctx, "gina")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.True(t, e.admins.IsAdmin(ctx, gina.UserID))

	_, err = e.console.MakeAdmin(ctx, "gina")
	assert.ErrorIs(t, err, ErrAlreadyAdmin)
}

func TestAdmin_BootstrapHelpers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.client.Auth.SignUp(ctx, "henry@example.com", "password123")
	require.NoError(t, err)

	n, err := e.console.FixProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = e.console.FixProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = e.console.PromoteEmail(ctx, "HENRY@example.com")
	require.NoError(t, err)
	assert.True(t, e.admins.IsAdmin(ctx, sess.UserID))

	_, err = e.console.PromoteEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, e.console.DeleteRoom(ctx, "random", true))
	created, err := e.console.SeedRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestAdmin_Cleanup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	msgs := e.client.Store.Messages()
	require.NoError(t, msgs.Insert(ctx, &models.Message{Room: "general", Username: "a", Text: "old", InsertedAt: now.Add(-30 * time.Hour)}))
	require.NoError(t, msgs.Insert(ctx, &models.Message{Room: "random", Username: "a", Text: "older", InsertedAt: now.Add(-50 * time.Hour)}))
	require.NoError(t, msgs.Insert(ctx, &models.Message{Room: "general", Username: "a", Text: "new", InsertedAt: now.Add(-time.Hour)}))

	n, err := e.console.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, err := msgs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}
