package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/backend/memory"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/realtime"

	"github.com/stretchr/testify/require"
)

// env wires the in-memory store behind the realtime broker, the way the
// server does at startup.
type env struct {
	raw      *memory.Store
	client   backend.Client
	profiles *ProfileService
	admins   *AdminResolver
	rooms    *RoomDirectory
	gate     *ModerationGate
	console  *AdminConsole
}

func newEnv(t *testing.T) *env {
	t.Helper()
	raw := memory.New()
	raw.SeedDefaults()
	broker := realtime.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })

	store := realtime.Notify(raw, broker)
	cfg := config.Config{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	client := backend.Client{Auth: auth.NewProvider(store, cfg), Store: store, Realtime: broker}
	admins := NewAdminResolver(store)
	return &env{
		raw:      raw,
		client:   client,
		profiles: NewProfileService(store),
		admins:   admins,
		rooms:    NewRoomDirectory(store, admins),
		gate:     NewModerationGate(store),
		console:  NewAdminConsole(store),
	}
}

// user registers an account and creates its profile.
func (e *env) user(t *testing.T, email string) *backend.Session {
	t.Helper()
	sess, err := e.client.Auth.SignUp(context.Background(), email, "password123")
	require.NoError(t, err)
	_, err = e.profiles.Ensure(context.Background(), sess)
	require.NoError(t, err)
	return sess
}

func (e *env) admin(t *testing.T, email string) *backend.Session {
	t.Helper()
	sess := e.user(t, email)
	_, err := e.console.PromoteEmail(context.Background(), email)
	require.NoError(t, err)
	return sess
}

func (e *env) stream(rec *streamRecorder) *MessageStream {
	return NewMessageStream(e.client, e.gate, e.rooms, e.profiles, 24*time.Hour, rec.add)
}

type streamRecorder struct {
	mu     sync.Mutex
	events []StreamEvent
}

func (r *streamRecorder) add(ev StreamEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *streamRecorder) kinds() []StreamEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StreamEventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
