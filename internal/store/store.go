// Package store keeps the rooms known to the development server.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
)

type Room struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	Mode      protocol.Mode `gorm:"primaryKey;type:text" json:"mode"`
	Name      string        `json:"name,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

type RoomStore interface {
	Create(ctx context.Context, room Room) error
	Get(ctx context.Context, mode protocol.Mode, id string) (Room, error)
	Delete(ctx context.Context, mode protocol.Mode, id string) error
	Close() error
}

type roomKey struct {
	mode protocol.Mode
	id   string
}

// Memory is a RoomStore held in process memory.
type Memory struct {
	mu    sync.RWMutex
	rooms map[roomKey]Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[roomKey]Room)}
}

func (m *Memory) Create(_ context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roomKey{room.Mode, room.ID}
	if _, ok := m.rooms[k]; ok {
		return ErrExists
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	m.rooms[k] = room
	return nil
}

func (m *Memory) Get(_ context.Context, mode protocol.Mode, id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomKey{mode, id}]
	if !ok {
		return Room{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Delete(_ context.Context, mode protocol.Mode, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := roomKey{mode, id}
	if _, ok := m.rooms[k]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, k)
	return nil
}

func (m *Memory) Close() error { return nil }
