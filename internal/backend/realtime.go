package backend

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TableProfiles    = "user_profiles"
	TableMessages    = "messages"
	TableRooms       = "chatrooms"
	TablePermissions = "user_room_permissions"
	TableCells       = "note_cells"
)

type Event string

const (
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
	EventAll    Event = "*"
)

// Filter restricts a subscription to rows whose column equals value.
type Filter struct {
	Column string
	Value  string
}

type Topic struct {
	Table  string
	Event  Event
	Filter *Filter
}

// Change is a row-change payload. Keys carries the filterable columns of the
// row; New and Old hold the JSON encoded row before and after the change.
type Change struct {
	Table  string            `json:"table"`
	Event  Event             `json:"event"`
	Keys   map[string]string `json:"keys"`
	New    json.RawMessage   `json:"new,omitempty"`
	Old    json.RawMessage   `json:"old,omitempty"`
	At     time.Time         `json:"at"`
	Origin string            `json:"origin,omitempty"`
}

// Matches reports whether the change is selected by the topic.
func (t Topic) Matches(c Change) bool {
	if t.Table != c.Table {
		return false
	}
	if t.Event != "" && t.Event != EventAll && t.Event != c.Event {
		return false
	}
	if t.Filter != nil && c.Keys[t.Filter.Column] != t.Filter.Value {
		return false
	}
	return true
}

// Decode unmarshals the new row, or the old one for deletes.
func (c Change) Decode(v any) error {
	raw := c.New
	if len(raw) == 0 {
		raw = c.Old
	}
	return json.Unmarshal(raw, v)
}

type Handler func(Change)

type Subscription interface {
	Unsubscribe()
}

type Realtime interface {
	Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error)
}
