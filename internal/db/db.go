package db

import (
	"errors"
	"strings"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Connect opens the database named by dsn. A "sqlite:<path>" DSN selects the
// embedded driver; anything else is handed to Postgres with a short retry loop
// so the server can wait for a container that is still starting.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		gdb, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// a single connection keeps ":memory:" databases shared across calls
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	}

	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// Migrate creates every table the chat uses and seeds the general room.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.Account{},
		&models.RefreshToken{},
		&models.UserProfile{},
		&models.Message{},
		&models.ChatRoom{},
		&models.RoomPermission{},
		&models.NoteCell{},
	); err != nil {
		return err
	}
	return SeedRooms(gdb)
}

// SeedRooms inserts the default rooms, leaving existing rows untouched.
func SeedRooms(gdb *gorm.DB) error {
	rooms := models.DefaultRooms()
	return gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&rooms).Error
}
