package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/backend/memory"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/realtime"
	"github.com/Harsh4r0ra/chat-cli/internal/terminal"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	hub    *Hub
	client backend.Client
	url    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	raw := memory.New()
	raw.SeedDefaults()
	broker := realtime.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	store := realtime.Notify(raw, broker)
	cfg := config.Config{
		Env: "dev", JWTSecret: "test-secret",
		AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7,
		MessageRetentionHours: 24, SweepIntervalMinutes: 60,
	}
	client := backend.Client{Auth: auth.NewProvider(store, cfg), Store: store, Realtime: broker}

	hub := NewHub()
	r := gin.New()
	r.GET("/ws", Serve(hub, client, cfg))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &fixture{hub: hub, client: client, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(terminal.Frame) bool) terminal.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f terminal.Frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func promptLabel(label string) func(terminal.Frame) bool {
	return func(f terminal.Frame) bool {
		return f.Type == terminal.FramePrompt && f.Prompt != nil && f.Prompt.Label == label
	}
}

func lineContaining(text string) func(terminal.Frame) bool {
	return func(f terminal.Frame) bool {
		return f.Type == terminal.FrameLine && strings.Contains(f.Text, text)
	}
}

func input(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(terminal.Inbound{Type: terminal.InboundInput, Text: text}))
}

func TestServe_RegisterOverWebsocket(t *testing.T) {
	fx := newFixture(t)
	conn := dial(t, fx.url)

	readUntil(t, conn, promptLabel("guest@chat:~$"))
	assert.Eventually(t, func() bool { return fx.hub.Online() == 1 }, time.Second, 10*time.Millisecond)

	input(t, conn, "/register")
	readUntil(t, conn, lineContaining("Enter your email:"))
	input(t, conn, "ivy@example.com")
	readUntil(t, conn, lineContaining("Enter your password:"))
	secret := readUntil(t, conn, func(f terminal.Frame) bool { return f.Type == terminal.FramePrompt })
	assert.True(t, secret.Prompt.Secret)
	input(t, conn, "password123")
	readUntil(t, conn, lineContaining("Registration successful!"))
	readUntil(t, conn, promptLabel("ivy@chat:~$"))

	require.NoError(t, conn.WriteJSON(terminal.Inbound{Type: terminal.InboundNote, NoteOp: terminal.NoteOp{Op: terminal.NoteDown}}))
	notes := readUntil(t, conn, func(f terminal.Frame) bool { return f.Type == terminal.FrameNotes })
	require.NotNil(t, notes.Notes)
	assert.NotEmpty(t, notes.Notes.Cells)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return fx.hub.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_RestoresSessionFromToken(t *testing.T) {
	fx := newFixture(t)
	sess, err := fx.client.Auth.SignUp(context.Background(), "jo@example.com", "password123")
	require.NoError(t, err)

	conn := dial(t, fx.url+"?token="+sess.AccessToken)
	readUntil(t, conn, promptLabel("jo@chat:~$"))

	other := dial(t, fx.url+"?token=garbage")
	readUntil(t, other, lineContaining("Session expired"))
}

func TestServe_MessagesReachOtherTerminal(t *testing.T) {
	fx := newFixture(t)
	a, err := fx.client.Auth.SignUp(context.Background(), "kai@example.com", "password123")
	require.NoError(t, err)
	b, err := fx.client.Auth.SignUp(context.Background(), "lee@example.com", "password123")
	require.NoError(t, err)

	connA := dial(t, fx.url+"?token="+a.AccessToken)
	readUntil(t, connA, promptLabel("kai@chat:~$"))
	connB := dial(t, fx.url+"?token="+b.AccessToken)
	readUntil(t, connB, promptLabel("lee@chat:~$"))

	input(t, connA, "hello over the wire")
	got := readUntil(t, connB, func(f terminal.Frame) bool { return f.Type == terminal.FrameMessage })
	require.NotNil(t, got.Message)
	assert.Equal(t, "kai", got.Message.Username)
	assert.Equal(t, "hello over the wire", got.Message.Text)
}

func TestHub_CloseDisconnectsTerminals(t *testing.T) {
	fx := newFixture(t)
	conn := dial(t, fx.url)
	readUntil(t, conn, promptLabel("guest@chat:~$"))

	fx.hub.Close()
	assert.Equal(t, 0, fx.hub.Online())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
