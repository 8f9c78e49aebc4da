// Package terminal runs one chat terminal: it turns typed input and note
// keystrokes into service calls and reports everything the client has to
// render as frames.
package terminal

import (
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/models"
)

const (
	FrameLine    = "line"
	FrameMessage = "message"
	FrameClear   = "clear"
	FramePrompt  = "prompt"
	FrameSession = "session"
	FrameRooms   = "rooms"
	FrameNotes   = "notes"
	FrameStatus  = "status"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Frame is one outbound render instruction.
type Frame struct {
	Type     string            `json:"type"`
	Level    string            `json:"level,omitempty"`
	Text     string            `json:"text,omitempty"`
	Room     string            `json:"room,omitempty"`
	Message  *models.Message   `json:"message,omitempty"`
	Messages []models.Message  `json:"messages,omitempty"`
	Rooms    []models.ChatRoom `json:"rooms,omitempty"`
	Prompt   *Prompt           `json:"prompt,omitempty"`
	Session  *SessionInfo      `json:"session,omitempty"`
	Notes    *NotesView        `json:"notes,omitempty"`
}

type Prompt struct {
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Secret      bool   `json:"secret"`
}

// SessionInfo is sent on every session change; a session frame without it
// means signed out. Tokens are included so the client can persist them. A
// session restored from an access token has no refresh token; the client keeps
// the one it already holds.
type SessionInfo struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Admin        bool      `json:"admin"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type NotesView struct {
	Cells []models.NoteCell `json:"cells"`
	Focus string            `json:"focus,omitempty"`
}

// Inbound is one frame sent by the client.
type Inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	NoteOp
}

const (
	InboundInput = "input"
	InboundNote  = "note"
)

// NoteOp is a keystroke or pointer action in the notes pane.
type NoteOp struct {
	Op       string `json:"op,omitempty"`
	CellID   string `json:"cell_id,omitempty"`
	Content  string `json:"content,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Confirm  bool   `json:"confirm,omitempty"`
}

const (
	NoteLoad       = "load"
	NoteFocus      = "focus"
	NoteEdit       = "edit"
	NoteBlur       = "blur"
	NoteEnter      = "enter"
	NoteShiftEnter = "shift_enter"
	NoteUp         = "up"
	NoteDown       = "down"
	NoteDelete     = "delete"
	NoteReorder    = "reorder"
)
