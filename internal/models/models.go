package models

import "time"

// Account is an identity known to the auth provider.
type Account struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"uniqueIndex;size:190;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID        uint       `gorm:"primaryKey"`
	AccountID string     `gorm:"index;size:36;not null"`
	Token     string     `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

type UserProfile struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Email           string     `gorm:"size:190;not null" json:"email"`
	Username        string     `gorm:"index;size:190;not null" json:"username"`
	IsAdmin         bool       `gorm:"not null;default:false" json:"is_admin"`
	IsBlocked       bool       `gorm:"index;not null;default:false" json:"is_blocked"`
	BlockedReason   *string    `json:"blocked_reason,omitempty"`
	BlockedAt       *time.Time `json:"blocked_at,omitempty"`
	TimeoutUntil    *time.Time `json:"timeout_until,omitempty"`
	TimeoutReason   *string    `json:"timeout_reason,omitempty"`
	TimeoutDuration *int       `json:"timeout_duration,omitempty"`
	LastSeen        *time.Time `gorm:"index" json:"last_seen,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// TimedOut reports whether a timeout is still running at now.
func (p *UserProfile) TimedOut(now time.Time) bool {
	return p.TimeoutUntil != nil && p.TimeoutUntil.After(now)
}

type Message struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Room            string    `gorm:"index:idx_msg_room_time,priority:1;size:32;not null" json:"room"`
	Username        string    `gorm:"size:190;not null" json:"username"`
	Text            string    `gorm:"type:text;not null" json:"text"`
	ReplyToID       *string   `gorm:"size:36" json:"reply_to_id,omitempty"`
	ReplyToUsername *string   `gorm:"size:190" json:"reply_to_username,omitempty"`
	ReplyToText     *string   `gorm:"type:text" json:"reply_to_text,omitempty"`
	InsertedAt      time.Time `gorm:"index:idx_msg_room_time,priority:2;index;not null" json:"inserted_at"`
}

type ChatRoom struct {
	Name        string    `gorm:"primaryKey;size:32" json:"name"`
	DisplayName string    `gorm:"size:32;not null" json:"display_name"`
	Description string    `gorm:"size:100" json:"description"`
	IsPublic    bool      `gorm:"not null;default:false" json:"is_public"`
	CreatedBy   *string   `gorm:"size:36" json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ChatRoom) TableName() string { return "chatrooms" }

type RoomPermission struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   string `gorm:"uniqueIndex:idx_perm_user_room,priority:1;size:36;not null" json:"user_id"`
	RoomName string `gorm:"uniqueIndex:idx_perm_user_room,priority:2;size:32;not null" json:"room_name"`
	CanRead  bool   `gorm:"not null;default:false" json:"can_read"`
	CanWrite bool   `gorm:"not null;default:false" json:"can_write"`
}

func (RoomPermission) TableName() string { return "user_room_permissions" }

type NoteCell struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Order     int       `gorm:"column:position;index;not null" json:"order"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// ProtectedRoom can never be deleted.
const ProtectedRoom = "general"

// DefaultRooms returns the rooms every fresh store starts with.
func DefaultRooms() []ChatRoom {
	return []ChatRoom{
		{Name: ProtectedRoom, DisplayName: "General", Description: "Open to everyone", IsPublic: true},
		{Name: "random", DisplayName: "Random", Description: "Off-topic", IsPublic: true},
	}
}
