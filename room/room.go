// Package room tracks which rooms each connection belongs to, independent
// of which worker process physically owns the connection. Membership is a
// bidirectional index: room -> connection fds and fd -> room names. Two
// backings are provided: a bounded in-process table and a Redis store
// shared by multiple worker processes.
package room

import (
	"context"
	"errors"
)

// Store is the membership index. Every mutation updates the forward and
// reverse index together or not at all, and is safe under concurrent use.
type Store interface {
	// Prepare runs one-time setup before the worker pool starts serving.
	Prepare(ctx context.Context) error

	// Add records fd as a member of room. Adding an existing membership
	// is a no-op.
	Add(ctx context.Context, fd int, room string) error

	// AddAll records fd as a member of each room.
	AddAll(ctx context.Context, fd int, rooms []string) error

	// Delete removes fd from room.
	Delete(ctx context.Context, fd int, room string) error

	// DeleteAll removes fd from the given rooms, or from every room it
	// belongs to when rooms is empty. Used on disconnect.
	DeleteAll(ctx context.Context, fd int, rooms []string) error

	// Clients returns the fds currently in room.
	Clients(ctx context.Context, room string) ([]int, error)

	// Rooms returns the rooms fd currently belongs to.
	Rooms(ctx context.Context, fd int) ([]string, error)
}

// Capacity failures surfaced by the bounded in-process table. A rejected
// join leaves the connection without that membership; nothing is dropped
// silently.
var (
	ErrTooManyRooms   = errors.New("room: room limit reached")
	ErrRoomFull       = errors.New("room: room member limit reached")
	ErrTooManyClients = errors.New("room: client limit reached")
	ErrClientFull     = errors.New("room: client room limit reached")
)

// Settings bounds the in-process table backing. Zero values fall back to
// the defaults below.
type Settings struct {
	RoomRows   int `yaml:"room_rows"`   // max distinct rooms
	RoomSize   int `yaml:"room_size"`   // max members per room
	ClientRows int `yaml:"client_rows"` // max distinct clients
	ClientSize int `yaml:"client_size"` // max rooms per client
}

// DefaultSettings mirrors the stock table driver capacities.
func DefaultSettings() Settings {
	return Settings{
		RoomRows:   4096,
		RoomSize:   2048,
		ClientRows: 8192,
		ClientSize: 2048,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.RoomRows <= 0 {
		s.RoomRows = d.RoomRows
	}
	if s.RoomSize <= 0 {
		s.RoomSize = d.RoomSize
	}
	if s.ClientRows <= 0 {
		s.ClientRows = d.ClientRows
	}
	if s.ClientSize <= 0 {
		s.ClientSize = d.ClientSize
	}
	return s
}
