package db

import (
	"context"
	"errors"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("github.com/Harsh4r0ra/chat-cli/internal/db")

// Store implements backend.Store on gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func (s *Store) Accounts() backend.AccountRepository       { return accountRepo{s} }
func (s *Store) Tokens() backend.TokenRepository           { return tokenRepo{s} }
func (s *Store) Profiles() backend.ProfileRepository       { return profileRepo{s} }
func (s *Store) Messages() backend.MessageRepository       { return messageRepo{s} }
func (s *Store) Rooms() backend.RoomRepository             { return roomRepo{s} }
func (s *Store) Permissions() backend.PermissionRepository { return permissionRepo{s} }
func (s *Store) Cells() backend.CellRepository             { return cellRepo{s} }

// start opens a span for one repository call and returns a session bound to it.
func (s *Store) start(ctx context.Context, table, op string) (*gorm.DB, trace.Span) {
	ctx, span := tracer.Start(ctx, table+"."+op, trace.WithAttributes(
		attribute.String("db.sql.table", table),
		attribute.String("db.operation", op),
	))
	return s.db.WithContext(ctx), span
}

// finish maps gorm errors onto backend sentinels and ends the span.
func finish(span trace.Span, err error) error {
	defer span.End()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return backend.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		err = backend.ErrConflict
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type accountRepo struct{ s *Store }

func (r accountRepo) Create(ctx context.Context, a *models.Account) error {
	tx, span := r.s.start(ctx, "accounts", "create")
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return finish(span, tx.Create(a).Error)
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	tx, span := r.s.start(ctx, "accounts", "get_by_email")
	var a models.Account
	if err := finish(span, tx.Where("LOWER(email) = LOWER(?)", email).First(&a).Error); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r accountRepo) Get(ctx context.Context, id string) (*models.Account, error) {
	tx, span := r.s.start(ctx, "accounts", "get")
	var a models.Account
	if err := finish(span, tx.Where("id = ?", id).First(&a).Error); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r accountRepo) List(ctx context.Context) ([]models.Account, error) {
	tx, span := r.s.start(ctx, "accounts", "list")
	var out []models.Account
	if err := finish(span, tx.Order("created_at asc").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Save(ctx context.Context, t *models.RefreshToken) error {
	tx, span := r.s.start(ctx, "refresh_tokens", "create")
	return finish(span, tx.Create(t).Error)
}

func (r tokenRepo) Valid(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	tx, span := r.s.start(ctx, "refresh_tokens", "valid")
	var rt models.RefreshToken
	err := tx.Where("token = ? AND revoked_at IS NULL AND expires_at > ?", token, now).First(&rt).Error
	if err := finish(span, err); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r tokenRepo) Revoke(ctx context.Context, token string, at time.Time) error {
	tx, span := r.s.start(ctx, "refresh_tokens", "revoke")
	err := tx.Model(&models.RefreshToken{}).
		Where("token = ? AND revoked_at IS NULL", token).
		Update("revoked_at", &at).Error
	return finish(span, err)
}

func (r tokenRepo) RevokeAll(ctx context.Context, accountID string, at time.Time) error {
	tx, span := r.s.start(ctx, "refresh_tokens", "revoke_all")
	err := tx.Model(&models.RefreshToken{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", &at).Error
	return finish(span, err)
}

type profileRepo struct{ s *Store }

func (r profileRepo) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	tx, span := r.s.start(ctx, backend.TableProfiles, "get")
	var p models.UserProfile
	if err := finish(span, tx.Where("id = ?", id).First(&p).Error); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r profileRepo) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	tx, span := r.s.start(ctx, backend.TableProfiles, "get_by_username")
	var p models.UserProfile
	if err := finish(span, tx.Where("username = ?", username).First(&p).Error); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r profileRepo) List(ctx context.Context) ([]models.UserProfile, error) {
	tx, span := r.s.start(ctx, backend.TableProfiles, "list")
	var out []models.UserProfile
	if err := finish(span, tx.Order("created_at desc").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

func (r profileRepo) Save(ctx context.Context, p *models.UserProfile) error {
	tx, span := r.s.start(ctx, backend.TableProfiles, "upsert")
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return finish(span, tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error)
}

func (r profileRepo) Update(ctx context.Context, id string, cols map[string]any) error {
	tx, span := r.s.start(ctx, backend.TableProfiles, "update")
	res := tx.Model(&models.UserProfile{}).Where("id = ?", id).Updates(cols)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return finish(span, res.Error)
}

func (r profileRepo) Count(ctx context.Context, f backend.ProfileFilter) (int64, error) {
	tx, span := r.s.start(ctx, backend.TableProfiles, "count")
	q := tx.Model(&models.UserProfile{})
	if f.BlockedOnly {
		q = q.Where("is_blocked = ?", true)
	}
	if f.SeenSince != nil {
		q = q.Where("last_seen >= ?", *f.SeenSince)
	}
	var n int64
	if err := finish(span, q.Count(&n).Error); err != nil {
		return 0, err
	}
	return n, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) ListSince(ctx context.Context, room string, since time.Time, limit int) ([]models.Message, error) {
	tx, span := r.s.start(ctx, backend.TableMessages, "list_since")
	span.SetAttributes(attribute.String("room", room))
	q := tx.Where("room = ? AND inserted_at >= ?", room, since).Order("inserted_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	if err := finish(span, q.Find(&msgs).Error); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r messageRepo) Insert(ctx context.Context, m *models.Message) error {
	tx, span := r.s.start(ctx, backend.TableMessages, "insert")
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.InsertedAt.IsZero() {
		m.InsertedAt = time.Now().UTC()
	}
	return finish(span, tx.Create(m).Error)
}

func (r messageRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, span := r.s.start(ctx, backend.TableMessages, "delete_before")
	res := tx.Where("inserted_at < ?", cutoff).Delete(&models.Message{})
	if err := finish(span, res.Error); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (r messageRepo) Count(ctx context.Context) (int64, error) {
	tx, span := r.s.start(ctx, backend.TableMessages, "count")
	var n int64
	if err := finish(span, tx.Model(&models.Message{}).Count(&n).Error); err != nil {
		return 0, err
	}
	return n, nil
}

type roomRepo struct{ s *Store }

func (r roomRepo) Get(ctx context.Context, name string) (*models.ChatRoom, error) {
	tx, span := r.s.start(ctx, backend.TableRooms, "get")
	var room models.ChatRoom
	if err := finish(span, tx.Where("name = ?", name).First(&room).Error); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r roomRepo) List(ctx context.Context) ([]models.ChatRoom, error) {
	tx, span := r.s.start(ctx, backend.TableRooms, "list")
	var out []models.ChatRoom
	if err := finish(span, tx.Order("display_name asc").Order("name asc").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

func (r roomRepo) Insert(ctx context.Context, room *models.ChatRoom) error {
	tx, span := r.s.start(ctx, backend.TableRooms, "insert")
	return finish(span, tx.Create(room).Error)
}

func (r roomRepo) Delete(ctx context.Context, name string) error {
	tx, span := r.s.start(ctx, backend.TableRooms, "delete")
	err := tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_name = ?", name).Delete(&models.RoomPermission{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", name).Delete(&models.ChatRoom{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return finish(span, err)
}

type permissionRepo struct{ s *Store }

func (r permissionRepo) ListForUser(ctx context.Context, userID string) ([]models.RoomPermission, error) {
	tx, span := r.s.start(ctx, backend.TablePermissions, "list_for_user")
	var out []models.RoomPermission
	if err := finish(span, tx.Where("user_id = ?", userID).Order("room_name asc").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

func (r permissionRepo) Get(ctx context.Context, userID, room string) (*models.RoomPermission, error) {
	tx, span := r.s.start(ctx, backend.TablePermissions, "get")
	var p models.RoomPermission
	if err := finish(span, tx.Where("user_id = ? AND room_name = ?", userID, room).First(&p).Error); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r permissionRepo) Upsert(ctx context.Context, p *models.RoomPermission) error {
	tx, span := r.s.start(ctx, backend.TablePermissions, "upsert")
	err := tx.Transaction(func(tx *gorm.DB) error {
		var existing models.RoomPermission
		err := tx.Where("user_id = ? AND room_name = ?", p.UserID, p.RoomName).First(&existing).Error
		switch {
		case err == nil:
			p.ID = existing.ID
			return tx.Model(&existing).Updates(map[string]interface{}{"can_read": p.CanRead, "can_write": p.CanWrite}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			return tx.Create(p).Error
		default:
			return err
		}
	})
	return finish(span, err)
}

func (r permissionRepo) Delete(ctx context.Context, userID, room string) error {
	tx, span := r.s.start(ctx, backend.TablePermissions, "delete")
	res := tx.Where("user_id = ? AND room_name = ?", userID, room).Delete(&models.RoomPermission{})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	return finish(span, err)
}

type cellRepo struct{ s *Store }

func (r cellRepo) List(ctx context.Context) ([]models.NoteCell, error) {
	tx, span := r.s.start(ctx, backend.TableCells, "list")
	var out []models.NoteCell
	if err := finish(span, tx.Order("position asc").Order("id asc").Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

func (r cellRepo) Find(ctx context.Context, ids []string) ([]models.NoteCell, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, span := r.s.start(ctx, backend.TableCells, "find")
	var out []models.NoteCell
	if err := finish(span, tx.Where("id IN ?", ids).Find(&out).Error); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes all cells in one statement.
func (r cellRepo) Upsert(ctx context.Context, cells ...models.NoteCell) error {
	if len(cells) == 0 {
		return nil
	}
	tx, span := r.s.start(ctx, backend.TableCells, "upsert")
	span.SetAttributes(attribute.Int("cells", len(cells)))
	return finish(span, tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&cells).Error)
}

func (r cellRepo) Delete(ctx context.Context, id string) error {
	tx, span := r.s.start(ctx, backend.TableCells, "delete")
	return finish(span, tx.Where("id = ?", id).Delete(&models.NoteCell{}).Error)
}
