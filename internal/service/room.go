package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/go-playground/validator/v10"
)

var roomNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,32}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
		return roomNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// RoomSpec is the operator input for a new room.
type RoomSpec struct {
	Name        string `json:"name" validate:"roomname"`
	DisplayName string `json:"display_name" validate:"min=2,max=32"`
	Description string `json:"description" validate:"max=100"`
	IsPublic    bool   `json:"is_public"`
}

var roomFieldMessages = map[string]string{
	"Name":        "room name must be 2-32 characters of letters, digits, '_' or '-'",
	"DisplayName": "display name must be 2-32 characters",
	"Description": "description must be at most 100 characters",
}

// Validate checks the input without touching the backend. Display name and
// description are measured after trimming.
func (s RoomSpec) Validate() error {
	s.DisplayName = strings.TrimSpace(s.DisplayName)
	s.Description = strings.TrimSpace(s.Description)
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0].Field()
		return &ValidationError{Field: f, Message: roomFieldMessages[f]}
	}
	return err
}

// DisplayNameFor capitalises the first letter of a room name.
func DisplayNameFor(name string) string {
	if name == "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(r)) + name[size:]
}

// RoomDirectory resolves rooms and per-identity access.
type RoomDirectory struct {
	store backend.Store
	admin *AdminResolver
	Now   func() time.Time
}

func NewRoomDirectory(store backend.Store, admin *AdminResolver) *RoomDirectory {
	return &RoomDirectory{store: store, admin: admin, Now: time.Now}
}

// ListAccessible returns public rooms plus private rooms the identity may read,
// ordered by display name. Admins see every room.
func (d *RoomDirectory) ListAccessible(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	rooms, err := d.store.Rooms().List(ctx)
	if err != nil {
		return nil, dataErr("list rooms", err)
	}
	if d.admin.IsAdmin(ctx, userID) {
		return rooms, nil
	}
	perms, err := d.store.Permissions().ListForUser(ctx, userID)
	if err != nil {
		return nil, dataErr("list permissions", err)
	}
	readable := make(map[string]bool, len(perms))
	for _, p := range perms {
		readable[p.RoomName] = p.CanRead
	}
	out := make([]models.ChatRoom, 0, len(rooms))
	for _, r := range rooms {
		if r.IsPublic || readable[r.Name] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Access reports the read and write rights of userID on room. Public rooms are
// open to everyone; private rooms need a permission row unless the caller is
// an admin.
func (d *RoomDirectory) Access(ctx context.Context, userID string, room *models.ChatRoom) (read, write bool, err error) {
	if room.IsPublic {
		return true, true, nil
	}
	if d.admin.IsAdmin(ctx, userID) {
		return true, true, nil
	}
	p, err := d.store.Permissions().Get(ctx, userID, room.Name)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return false, false, nil
		}
		return false, false, dataErr("room access", err)
	}
	return p.CanRead, p.CanWrite, nil
}

// CanWrite is Access for senders: a room that vanished is reported as such.
func (d *RoomDirectory) CanWrite(ctx context.Context, userID, name string) error {
	room, err := d.store.Rooms().Get(ctx, name)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return ErrRoomNotFound
		}
		return dataErr("get room", err)
	}
	_, write, err := d.Access(ctx, userID, room)
	if err != nil {
		return err
	}
	if !write {
		return ErrNoWriteAccess
	}
	return nil
}

// Resolve looks a room up for a switch. A missing room is created, private and
// with a capitalised display name, when the caller is an admin. The returned
// flag reports whether the room was created.
func (d *RoomDirectory) Resolve(ctx context.Context, userID, name string) (*models.ChatRoom, bool, error) {
	name = strings.TrimSpace(name)
	room, err := d.store.Rooms().Get(ctx, name)
	switch {
	case err == nil:
		read, _, err := d.Access(ctx, userID, room)
		if err != nil {
			return nil, false, err
		}
		if !read {
			return nil, false, ErrNoRoomAccess
		}
		return room, false, nil
	case !errors.Is(err, backend.ErrNotFound):
		return nil, false, dataErr("get room", err)
	}

	if !d.admin.IsAdmin(ctx, userID) {
		return nil, false, ErrRoomNotFound
	}
	spec := RoomSpec{Name: name, DisplayName: DisplayNameFor(name)}
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}
	creator := userID
	room = &models.ChatRoom{
		Name:        spec.Name,
		DisplayName: spec.DisplayName,
		IsPublic:    false,
		CreatedBy:   &creator,
		CreatedAt:   d.Now().UTC(),
	}
	if err := d.store.Rooms().Insert(ctx, room); err != nil {
		return nil, false, dataErr("create room", err)
	}
	return room, true, nil
}
