package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/rs/zerolog/log"
)

// Publisher is the write side of a Broker.
type Publisher interface {
	Publish(ctx context.Context, c backend.Change) error
}

// Notify wraps store so that successful writes to the watched tables emit row
// changes on pub, the way a hosted database streams its replication log.
func Notify(store backend.Store, pub Publisher) backend.Store {
	return &notifyingStore{Store: store, pub: pub}
}

type notifyingStore struct {
	backend.Store
	pub Publisher
}

func (s *notifyingStore) emit(ctx context.Context, table string, ev backend.Event, keys map[string]string, newRow, oldRow any) {
	c := backend.Change{Table: table, Event: ev, Keys: keys, At: time.Now().UTC()}
	var err error
	if newRow != nil {
		if c.New, err = json.Marshal(newRow); err != nil {
			log.Error().Err(err).Str("table", table).Msg("encode change")
			return
		}
	}
	if oldRow != nil {
		if c.Old, err = json.Marshal(oldRow); err != nil {
			log.Error().Err(err).Str("table", table).Msg("encode change")
			return
		}
	}
	if err := s.pub.Publish(ctx, c); err != nil {
		log.Warn().Err(err).Str("table", table).Str("event", string(ev)).Msg("publish change")
	}
}

func (s *notifyingStore) Profiles() backend.ProfileRepository {
	return &notifyingProfiles{ProfileRepository: s.Store.Profiles(), s: s}
}

func (s *notifyingStore) Messages() backend.MessageRepository {
	return &notifyingMessages{MessageRepository: s.Store.Messages(), s: s}
}

func (s *notifyingStore) Rooms() backend.RoomRepository {
	return &notifyingRooms{RoomRepository: s.Store.Rooms(), s: s}
}

func (s *notifyingStore) Permissions() backend.PermissionRepository {
	return &notifyingPermissions{PermissionRepository: s.Store.Permissions(), s: s}
}

func (s *notifyingStore) Cells() backend.CellRepository {
	return &notifyingCells{CellRepository: s.Store.Cells(), s: s}
}

type notifyingProfiles struct {
	backend.ProfileRepository
	s *notifyingStore
}

func (r *notifyingProfiles) Save(ctx context.Context, p *models.UserProfile) error {
	old, err := r.ProfileRepository.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return err
	}
	if err := r.ProfileRepository.Save(ctx, p); err != nil {
		return err
	}
	keys := map[string]string{"id": p.ID, "username": p.Username}
	if old == nil {
		r.s.emit(ctx, backend.TableProfiles, backend.EventInsert, keys, p, nil)
	} else {
		r.s.emit(ctx, backend.TableProfiles, backend.EventUpdate, keys, p, old)
	}
	return nil
}

func (r *notifyingProfiles) Update(ctx context.Context, id string, cols map[string]any) error {
	old, err := r.ProfileRepository.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.ProfileRepository.Update(ctx, id, cols); err != nil {
		return err
	}
	cur, err := r.ProfileRepository.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("reload profile after update")
		return nil
	}
	r.s.emit(ctx, backend.TableProfiles, backend.EventUpdate, map[string]string{"id": id, "username": cur.Username}, cur, old)
	return nil
}

type notifyingMessages struct {
	backend.MessageRepository
	s *notifyingStore
}

func (r *notifyingMessages) Insert(ctx context.Context, m *models.Message) error {
	if err := r.MessageRepository.Insert(ctx, m); err != nil {
		return err
	}
	r.s.emit(ctx, backend.TableMessages, backend.EventInsert, map[string]string{"id": m.ID, "room": m.Room}, m, nil)
	return nil
}

type notifyingRooms struct {
	backend.RoomRepository
	s *notifyingStore
}

func (r *notifyingRooms) Insert(ctx context.Context, room *models.ChatRoom) error {
	if err := r.RoomRepository.Insert(ctx, room); err != nil {
		return err
	}
	r.s.emit(ctx, backend.TableRooms, backend.EventInsert, map[string]string{"name": room.Name}, room, nil)
	return nil
}

func (r *notifyingRooms) Delete(ctx context.Context, name string) error {
	old, err := r.RoomRepository.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := r.RoomRepository.Delete(ctx, name); err != nil {
		return err
	}
	r.s.emit(ctx, backend.TableRooms, backend.EventDelete, map[string]string{"name": name}, nil, old)
	return nil
}

type notifyingPermissions struct {
	backend.PermissionRepository
	s *notifyingStore
}

func (r *notifyingPermissions) Upsert(ctx context.Context, p *models.RoomPermission) error {
	old, err := r.PermissionRepository.Get(ctx, p.UserID, p.RoomName)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return err
	}
	if err := r.PermissionRepository.Upsert(ctx, p); err != nil {
		return err
	}
	keys := map[string]string{"user_id": p.UserID, "room_name": p.RoomName}
	if old == nil {
		r.s.emit(ctx, backend.TablePermissions, backend.EventInsert, keys, p, nil)
	} else {
		r.s.emit(ctx, backend.TablePermissions, backend.EventUpdate, keys, p, old)
	}
	return nil
}

func (r *notifyingPermissions) Delete(ctx context.Context, userID, room string) error {
	old, err := r.PermissionRepository.Get(ctx, userID, room)
	if err != nil {
		return err
	}
	if err := r.PermissionRepository.Delete(ctx, userID, room); err != nil {
		return err
	}
	r.s.emit(ctx, backend.TablePermissions, backend.EventDelete, map[string]string{"user_id": userID, "room_name": room}, nil, old)
	return nil
}

type notifyingCells struct {
	backend.CellRepository
	s *notifyingStore
}

func (r *notifyingCells) Upsert(ctx context.Context, cells ...models.NoteCell) error {
	ids := make([]string, 0, len(cells))
	for _, c := range cells {
		ids = append(ids, c.ID)
	}
	existing, err := r.CellRepository.Find(ctx, ids)
	if err != nil {
		return err
	}
	before := make(map[string]models.NoteCell, len(existing))
	for _, c := range existing {
		before[c.ID] = c
	}
	if err := r.CellRepository.Upsert(ctx, cells...); err != nil {
		return err
	}
	for i := range cells {
		c := cells[i]
		keys := map[string]string{"id": c.ID}
		if old, ok := before[c.ID]; ok {
			r.s.emit(ctx, backend.TableCells, backend.EventUpdate, keys, c, old)
		} else {
			r.s.emit(ctx, backend.TableCells, backend.EventInsert, keys, c, nil)
		}
	}
	return nil
}

func (r *notifyingCells) Delete(ctx context.Context, id string) error {
	existing, err := r.CellRepository.Find(ctx, []string{id})
	if err != nil {
		return err
	}
	if err := r.CellRepository.Delete(ctx, id); err != nil {
		return err
	}
	var old any = map[string]string{"id": id}
	if len(existing) == 1 {
		old = existing[0]
	}
	r.s.emit(ctx, backend.TableCells, backend.EventDelete, map[string]string{"id": id}, nil, old)
	return nil
}
