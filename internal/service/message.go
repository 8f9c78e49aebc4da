package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/metrics"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/rs/zerolog/log"
)

const historyLimit = 500

type StreamState int

const (
	StreamIdle StreamState = iota
	StreamLoading
	StreamLive
)

type StreamEventKind int

const (
	// StreamLoaded replaces the whole list.
	StreamLoaded StreamEventKind = iota
	StreamAppended
	StreamPruned
)

type StreamEvent struct {
	Kind     StreamEventKind
	Room     string
	Messages []models.Message
}

// MessageStream keeps the ordered message list of the active room in sync
// with the backend. At most one live subscription is open at a time.
type MessageStream struct {
	client    backend.Client
	gate      *ModerationGate
	rooms     *RoomDirectory
	profiles  *ProfileService
	emit      func(StreamEvent)
	retention time.Duration
	Now       func() time.Time

	mu      sync.Mutex
	gen     int
	room    string
	state   StreamState
	list    []models.Message
	ids     map[string]struct{}
	pending []models.Message
	sub     backend.Subscription

	sweepStop chan struct{}
}

func NewMessageStream(client backend.Client, gate *ModerationGate, rooms *RoomDirectory, profiles *ProfileService, retention time.Duration, emit func(StreamEvent)) *MessageStream {
	if emit == nil {
		emit = func(StreamEvent) {}
	}
	return &MessageStream{
		client:    client,
		gate:      gate,
		rooms:     rooms,
		profiles:  profiles,
		emit:      emit,
		retention: retention,
		Now:       time.Now,
		ids:       make(map[string]struct{}),
	}
}

func (s *MessageStream) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *MessageStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the visible list.
func (s *MessageStream) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.list))
	copy(out, s.list)
	return out
}

// Enter makes room the active room. The previous subscription is released
// first; the new one is opened before the history fetch and inserts that
// arrive while loading are merged into the fetched list by id. A retention
// sweep runs once the room is live.
func (s *MessageStream) Enter(ctx context.Context, room string) error {
	s.mu.Lock()
	old := s.sub
	s.sub = nil
	s.gen++
	gen := s.gen
	s.room = room
	s.state = StreamLoading
	s.list = nil
	s.ids = make(map[string]struct{})
	s.pending = nil
	s.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}

	topic := backend.Topic{
		Table:  backend.TableMessages,
		Event:  backend.EventInsert,
		Filter: &backend.Filter{Column: "room", Value: room},
	}
	sub, err := s.client.Realtime.Subscribe(ctx, topic, func(c backend.Change) { s.onInsert(gen, c) })
	if err != nil {
		return dataErr("subscribe messages", err)
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	since := s.Now().UTC().Add(-s.retention)
	history, err := s.client.Store.Messages().ListSince(ctx, room, since, historyLimit)
	if err != nil {
		s.goLive(gen, nil)
		return dataErr("load messages", err)
	}
	s.goLive(gen, history)

	if _, err := s.Sweep(ctx); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("retention sweep")
	}
	return nil
}

func (s *MessageStream) goLive(gen int, history []models.Message) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	seen := make(map[string]struct{}, len(history)+len(s.pending))
	merged := make([]models.Message, 0, len(history)+len(s.pending))
	for _, batch := range [][]models.Message{history, s.pending} {
		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].InsertedAt.Before(merged[j].InsertedAt) })
	s.ids = seen
	s.list = merged
	s.pending = nil
	s.state = StreamLive
	room := s.room
	snapshot := make([]models.Message, len(merged))
	copy(snapshot, merged)
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamLoaded, Room: room, Messages: snapshot})
}

func (s *MessageStream) onInsert(gen int, c backend.Change) {
	var m models.Message
	if err := c.Decode(&m); err != nil {
		log.Warn().Err(err).Msg("decode message change")
		return
	}
	s.mu.Lock()
	if s.gen != gen || m.Room != s.room {
		s.mu.Unlock()
		return
	}
	if s.state == StreamLoading {
		s.pending = append(s.pending, m)
		s.mu.Unlock()
		return
	}
	if _, dup := s.ids[m.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.ids[m.ID] = struct{}{}
	s.list = append(s.list, m)
	room := s.room
	s.mu.Unlock()

	s.emit(StreamEvent{Kind: StreamAppended, Room: room, Messages: []models.Message{m}})
}

// Send persists text in the room that is active when Send is called. The
// message reaches the list through the live subscription.
func (s *MessageStream) Send(ctx context.Context, sess *backend.Session, text string, replyTo *models.Message) (*models.Message, error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	room := s.Room()
	if room == "" {
		return nil, ErrRoomNotFound
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Message: "message is empty"}
	}
	if err := s.gate.Check(ctx, sess.UserID); err != nil {
		return nil, err
	}
	if err := s.rooms.CanWrite(ctx, sess.UserID, room); err != nil {
		return nil, err
	}

	m := &models.Message{
		Room:       room,
		Username:   sess.Username(),
		Text:       text,
		InsertedAt: s.Now().UTC(),
	}
	if replyTo != nil {
		id, user, body := replyTo.ID, replyTo.Username, replyTo.Text
		m.ReplyToID, m.ReplyToUsername, m.ReplyToText = &id, &user, &body
	}
	if err := s.client.Store.Messages().Insert(ctx, m); err != nil {
		return nil, dataErr("send message", err)
	}
	metrics.MessagesSentTotal.Inc()
	if s.profiles != nil {
		s.profiles.Touch(ctx, sess.UserID)
	}
	return m, nil
}

// Find returns the visible message whose id starts with prefix. Ambiguous or
// unknown prefixes return nil.
func (s *MessageStream) Find(prefix string) *models.Message {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Message
	for i := range s.list {
		if strings.HasPrefix(s.list[i].ID, prefix) {
			if found != nil {
				return nil
			}
			m := s.list[i]
			found = &m
		}
	}
	return found
}

// Sweep deletes every message older than the retention window, in all rooms,
// and drops them from the visible list.
func (s *MessageStream) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Now().UTC().Add(-s.retention)
	n, err := s.client.Store.Messages().DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, dataErr("cleanup messages", err)
	}
	metrics.MessagesPurgedTotal.Add(float64(n))

	s.mu.Lock()
	kept := s.list[:0]
	for _, m := range s.list {
		if m.InsertedAt.Before(cutoff) {
			delete(s.ids, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	pruned := len(kept) != len(s.list)
	s.list = kept
	room := s.room
	snapshot := make([]models.Message, len(kept))
	copy(snapshot, kept)
	s.mu.Unlock()

	if pruned {
		s.emit(StreamEvent{Kind: StreamPruned, Room: room, Messages: snapshot})
	}
	return n, nil
}

// StartSweeper repeats Sweep every interval until StopSweeper or ctx ends.
func (s *MessageStream) StartSweeper(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.sweepStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.sweepStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				if n, err := s.Sweep(ctx); err != nil {
					log.Warn().Err(err).Msg("scheduled retention sweep")
				} else if n > 0 {
					log.Info().Int64("deleted", n).Msg("retention sweep")
				}
			}
		}
	}()
}

func (s *MessageStream) StopSweeper() {
	s.mu.Lock()
	stop := s.sweepStop
	s.sweepStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Stop releases the subscription and the sweeper and clears the list.
func (s *MessageStream) Stop() {
	s.StopSweeper()
	s.mu.Lock()
	old := s.sub
	s.sub = nil
	s.gen++
	s.room = ""
	s.state = StreamIdle
	s.list = nil
	s.ids = make(map[string]struct{})
	s.pending = nil
	s.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
}
