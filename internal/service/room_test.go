package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomSpec_Validate(t *testing.T) {
	tests := []struct {
		name  string
		spec  RoomSpec
		field string
	}{
		{"valid", RoomSpec{Name: "dev-ops_2", DisplayName: "Dev Ops", Description: "ops talk"}, ""},
		{"name too short", RoomSpec{Name: "a", DisplayName: "Ab"}, "Name"},
		{"name too long", RoomSpec{Name: strings.Repeat("a", 33), DisplayName: "Ab"}, "Name"},
		{"name with dot", RoomSpec{Name: "a.b", DisplayName: "Ab"}, "Name"},
		{"display name blank", RoomSpec{Name: "ab", DisplayName: "   "}, "DisplayName"},
		{"display name too long", RoomSpec{Name: "ab", DisplayName: strings.Repeat("x", 33)}, "DisplayName"},
		{"description too long", RoomSpec{Name: "ab", DisplayName: "Ab", Description: strings.Repeat("d", 101)}, "Description"},
		{"description trimmed", RoomSpec{Name: "ab", DisplayName: "Ab", Description: strings.Repeat("d", 100) + "   "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestDisplayNameFor(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"lounge": "Lounge",
		"Lounge": "Lounge",
		"9lives": "9lives",
	}
	for in, want := range tests {
		if got := DisplayNameFor(in); got != want {
			t.Errorf("DisplayNameFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoomDirectory_Resolve(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root := e.admin(t, "root@example.com")
	mia := e.user(t, "mia@example.com")

	room, created, err := e.rooms.Resolve(ctx, mia.UserID, "general")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "general", room.Name)

	_, _, err = e.rooms.Resolve(ctx, mia.UserID, "lounge")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	room, created, err = e.rooms.Resolve(ctx, root.UserID, "lounge")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Lounge", room.DisplayName)
	assert.False(t, room.IsPublic)

	_, _, err = e.rooms.Resolve(ctx, mia.UserID, "lounge")
	assert.ErrorIs(t, err, ErrNoRoomAccess)

	_, _, err = e.rooms.Resolve(ctx, root.UserID, "bad name!")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = e.console.GrantAccess(ctx, "mia", "lounge", true, false)
	require.NoError(t, err)
	_, _, err = e.rooms.Resolve(ctx, mia.UserID, "lounge")
	require.NoError(t, err)
	read, write, err := e.rooms.Access(ctx, mia.UserID, room)
	require.NoError(t, err)
	assert.True(t, read)
	assert.False(t, write)
}

func TestRoomDirectory_ListOrderedByDisplayName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.console.CreateRoom(ctx, RoomSpec{Name: "zeta", DisplayName: "Alpha", IsPublic: true}, "")
	require.NoError(t, err)

	rooms, err := e.rooms.ListAccessible(ctx, "anyone")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "general", "random"}, roomNames(rooms))
}

func TestRoomDirectory_AdminsListPrivateRooms(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root := e.admin(t, "root@example.com")
	noor := e.user(t, "noor@example.com")

	_, err := e.console.CreateRoom(ctx, RoomSpec{Name: "staff", DisplayName: "Staff"}, root.UserID)
	require.NoError(t, err)

	rooms, err := e.rooms.ListAccessible(ctx, root.UserID)
	require.NoError(t, err)
	assert.Contains(t, roomNames(rooms), "staff")

	rooms, err = e.rooms.ListAccessible(ctx, noor.UserID)
	require.NoError(t, err)
	assert.NotContains(t, roomNames(rooms), "staff")
	assert.Contains(t, roomNames(rooms), "general")
}
