package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStream_RoomIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")

	inGeneral, inRandom, sender := &streamRecorder{}, &streamRecorder{}, &streamRecorder{}
	a := e.stream(inGeneral)
	b := e.stream(inRandom)
	s := e.stream(sender)
	require.NoError(t, a.Enter(ctx, "general"))
	require.NoError(t, b.Enter(ctx, "random"))
	require.NoError(t, s.Enter(ctx, "general"))
	defer a.Stop()
	defer b.Stop()
	defer s.Stop()

	m, err := s.Send(ctx, alice, "hi all", nil)
	require.NoError(t, err)
	assert.Equal(t, "general", m.Room)
	assert.Equal(t, "alice", m.Username)

	require.Len(t, a.Messages(), 1)
	assert.Equal(t, m.ID, a.Messages()[0].ID)
	require.Len(t, s.Messages(), 1)
	assert.Empty(t, b.Messages())
	assert.Equal(t, []StreamEventKind{StreamLoaded, StreamAppended}, inGeneral.kinds())
	assert.Equal(t, []StreamEventKind{StreamLoaded}, inRandom.kinds())
}

func TestMessageStream_SwitchReleasesOldRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")

	viewer := e.stream(&streamRecorder{})
	require.NoError(t, viewer.Enter(ctx, "general"))
	require.NoError(t, viewer.Enter(ctx, "random"))
	defer viewer.Stop()
	assert.Equal(t, "random", viewer.Room())
	assert.Equal(t, StreamLive, viewer.State())

	sender := e.stream(&streamRecorder{})
	require.NoError(t, sender.Enter(ctx, "general"))
	defer sender.Stop()
	_, err := sender.Send(ctx, alice, "only for general", nil)
	require.NoError(t, err)

	assert.Empty(t, viewer.Messages())
}

func TestMessageStream_HistoryAndRetention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	clk := newClock()

	old := &models.Message{Room: "general", Username: "old", Text: "stale", InsertedAt: clk.Now().Add(-25 * time.Hour)}
	other := &models.Message{Room: "random", Username: "old", Text: "stale too", InsertedAt: clk.Now().Add(-30 * time.Hour)}
	fresh := &models.Message{Room: "general", Username: "new", Text: "recent", InsertedAt: clk.Now().Add(-time.Hour)}
	for _, m := range []*models.Message{old, other, fresh} {
		require.NoError(t, e.raw.Messages().Insert(ctx, m))
	}

	s := e.stream(&streamRecorder{})
	s.Now = clk.Now
	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	n, err := e.raw.Messages().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "entering a room sweeps every room")

	clk.Advance(24 * time.Hour)
	deleted, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Empty(t, s.Messages())
}

func TestMessageStream_SendValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")
	s := e.stream(&streamRecorder{})

	_, err := s.Send(ctx, alice, "before entering", nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	_, err = s.Send(ctx, nil, "hi", nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = s.Send(ctx, alice, "   ", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMessageStream_Reply(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")
	bob := e.user(t, "bob@example.com")

	s := e.stream(&streamRecorder{})
	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	first, err := s.Send(ctx, alice, "question?", nil)
	require.NoError(t, err)

	target := s.Find(first.ID[:8])
	require.NotNil(t, target)
	reply, err := s.Send(ctx, bob, "answer", target)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, first.ID, *reply.ReplyToID)
	assert.Equal(t, "alice", *reply.ReplyToUsername)
	assert.Equal(t, "question?", *reply.ReplyToText)

	assert.Nil(t, s.Find(""))
	assert.Nil(t, s.Find("zzzz-not-an-id"))
}

func TestMessageStream_PrivateRoomWriteAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root := e.admin(t, "root@example.com")
	dave := e.user(t, "dave@example.com")

	_, err := e.console.CreateRoom(ctx, RoomSpec{Name: "ops", DisplayName: "Ops"}, root.UserID)
	require.NoError(t, err)
	_, err = e.console.GrantAccess(ctx, "dave", "ops", true, false)
	require.NoError(t, err)

	s := e.stream(&streamRecorder{})
	require.NoError(t, s.Enter(ctx, "ops"))
	defer s.Stop()

	_, err = s.Send(ctx, dave, "can I post?", nil)
	assert.ErrorIs(t, err, ErrNoWriteAccess)

	_, err = s.Send(ctx, root, "admins can", nil)
	assert.NoError(t, err)
}

func TestMessageStream_StopClears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")

	s := e.stream(&streamRecorder{})
	require.NoError(t, s.Enter(ctx, "general"))
	_, err := s.Send(ctx, alice, "hi", nil)
	require.NoError(t, err)
	s.Stop()

	assert.Equal(t, StreamIdle, s.State())
	assert.Empty(t, s.Messages())
	assert.Equal(t, "", s.Room())
}

// loadingStore inserts messages around the history read, so they reach the
// stream while it is still loading.
type loadingStore struct {
	backend.Store
	before, after func(ctx context.Context)
}

func (s *loadingStore) Messages() backend.MessageRepository {
	return &loadingMessages{MessageRepository: s.Store.Messages(), s: s}
}

type loadingMessages struct {
	backend.MessageRepository
	s *loadingStore
}

func (r *loadingMessages) ListSince(ctx context.Context, room string, since time.Time, limit int) ([]models.Message, error) {
	if f := r.s.before; f != nil {
		r.s.before = nil
		f(ctx)
	}
	out, err := r.MessageRepository.ListSince(ctx, room, since, limit)
	if f := r.s.after; f != nil {
		r.s.after = nil
		f(ctx)
	}
	return out, err
}

func TestMessageStream_InsertsWhileLoadingMergedOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	insert := func(ctx context.Context, text string, at time.Time) {
		require.NoError(t, e.client.Store.Messages().Insert(ctx, &models.Message{Room: "general", Username: "x", Text: text, InsertedAt: at}))
	}
	insert(ctx, "history", now.Add(-3*time.Minute))

	var s *MessageStream
	store := &loadingStore{Store: e.client.Store}
	store.before = func(ctx context.Context) {
		require.Equal(t, StreamLoading, s.State())
		insert(ctx, "raced the fetch", now.Add(-2*time.Minute))
	}
	store.after = func(ctx context.Context) {
		require.Equal(t, StreamLoading, s.State())
		insert(ctx, "after the fetch", now.Add(-time.Minute))
	}
	client := e.client
	client.Store = store
	rec := &streamRecorder{}
	s = NewMessageStream(client, e.gate, e.rooms, e.profiles, 24*time.Hour, rec.add)
	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	var texts []string
	for _, m := range s.Messages() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"history", "raced the fetch", "after the fetch"}, texts)
	assert.Equal(t, []StreamEventKind{StreamLoaded}, rec.kinds(), "buffered inserts arrive with the load")
	assert.Equal(t, StreamLive, s.State())

	insert(ctx, "live", now)
	require.Len(t, s.Messages(), 4)
	assert.Equal(t, []StreamEventKind{StreamLoaded, StreamAppended}, rec.kinds())
}

func TestMessageStream_Sweeper(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	clk := newClock()
	rec := &streamRecorder{}
	s := e.stream(rec)
	s.Now = clk.Now
	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	require.NoError(t, e.client.Store.Messages().Insert(ctx, &models.Message{Room: "general", Username: "x", Text: "soon stale", InsertedAt: clk.Now()}))
	require.Len(t, s.Messages(), 1)

	s.StartSweeper(ctx, 5*time.Millisecond)
	s.StartSweeper(ctx, 5*time.Millisecond)
	clk.Advance(25 * time.Hour)
	assert.Eventually(t, func() bool { return len(s.Messages()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, k := range rec.kinds() {
			if k == StreamPruned {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	s.StopSweeper()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, e.raw.Messages().Insert(ctx, &models.Message{Room: "random", Username: "x", Text: "ancient", InsertedAt: clk.Now().Add(-48 * time.Hour)}))
	time.Sleep(30 * time.Millisecond)
	n, err := e.raw.Messages().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "no sweep after StopSweeper")
	s.StopSweeper()
}

func TestMessageStream_SendKeepsRoomAcrossSwitch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice@example.com")

	var s *MessageStream
	store := &interleavedStore{Store: e.client.Store}
	store.hook = func() { require.NoError(t, s.Enter(ctx, "random")) }
	client := e.client
	client.Store = store
	s = NewMessageStream(client, NewModerationGate(store), e.rooms, e.profiles, 24*time.Hour, nil)
	require.NoError(t, s.Enter(ctx, "general"))
	defer s.Stop()

	m, err := s.Send(ctx, alice, "typed in general", nil)
	require.NoError(t, err)
	require.Nil(t, store.hook, "room switched during the send")
	assert.Equal(t, "general", m.Room)
	assert.Equal(t, "random", s.Room())
	assert.Empty(t, s.Messages())

	stored, err := e.client.Store.Messages().ListSince(ctx, "general", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "typed in general", stored[0].Text)
	inRandom, err := e.client.Store.Messages().ListSince(ctx, "random", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, inRandom)
}
