package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

// Gorm is a RoomStore backed by postgres.
type Gorm struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the rooms table. gorm logs
// warnings and errors through log.
func OpenPostgres(dsn string, log *zap.Logger) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return NewGorm(db)
}

// NewGorm wraps an open connection and migrates the rooms table.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&Room{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Create(ctx context.Context, room Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	err := g.db.WithContext(ctx).Create(&room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return err
}

func (g *Gorm) Get(ctx context.Context, mode protocol.Mode, id string) (Room, error) {
	var r Room
	err := g.db.WithContext(ctx).Where("id = ? AND mode = ?", id, mode).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

func (g *Gorm) Delete(ctx context.Context, mode protocol.Mode, id string) error {
	res := g.db.WithContext(ctx).Where("id = ? AND mode = ?", id, mode).Delete(&Room{})
	if res.Error != nil {
		return fmt.Errorf("delete room: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
