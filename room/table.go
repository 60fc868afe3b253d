package room

import (
	"context"
	"sync"
)

// TableStore is the in-process Store backing: forward and reverse maps
// guarded by one mutex, with configured capacity bounds. Suitable when all
// workers share one process; use RedisStore across processes.
//
// An empty room is removed when its last member leaves rather than kept
// as a placeholder.
type TableStore struct {
	mu       sync.RWMutex
	rooms    map[string]map[int]struct{} // room -> fds
	clients  map[int]map[string]struct{} // fd -> rooms
	settings Settings
}

// NewTableStore creates a bounded in-memory store.
func NewTableStore(settings Settings) *TableStore {
	return &TableStore{
		rooms:    make(map[string]map[int]struct{}),
		clients:  make(map[int]map[string]struct{}),
		settings: settings.withDefaults(),
	}
}

// Prepare allocates nothing further; the maps are ready at construction.
func (t *TableStore) Prepare(ctx context.Context) error {
	return nil
}

// Add records fd in room, enforcing capacity on both indexes before
// mutating either.
func (t *TableStore) Add(ctx context.Context, fd int, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(fd, room)
}

// AddAll records fd in each room. Rooms are checked and applied one at a
// time; a capacity failure stops at the offending room with earlier
// memberships intact, each of them fully applied.
func (t *TableStore) AddAll(ctx context.Context, fd int, rooms []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, room := range rooms {
		if err := t.add(fd, room); err != nil {
			return err
		}
	}
	return nil
}

func (t *TableStore) add(fd int, room string) error {
	members, roomExists := t.rooms[room]
	if roomExists {
		if _, ok := members[fd]; ok {
			return nil // idempotent
		}
	}

	if !roomExists && len(t.rooms) >= t.settings.RoomRows {
		return ErrTooManyRooms
	}
	if roomExists && len(members) >= t.settings.RoomSize {
		return ErrRoomFull
	}

	joined, clientExists := t.clients[fd]
	if !clientExists && len(t.clients) >= t.settings.ClientRows {
		return ErrTooManyClients
	}
	if clientExists && len(joined) >= t.settings.ClientSize {
		return ErrClientFull
	}

	if !roomExists {
		members = make(map[int]struct{})
		t.rooms[room] = members
	}
	members[fd] = struct{}{}

	if !clientExists {
		joined = make(map[string]struct{})
		t.clients[fd] = joined
	}
	joined[room] = struct{}{}

	return nil
}

// Delete removes fd from room.
func (t *TableStore) Delete(ctx context.Context, fd int, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.delete(fd, room)
	return nil
}

// DeleteAll removes fd from the given rooms, or every room when rooms is
// empty.
func (t *TableStore) DeleteAll(ctx context.Context, fd int, rooms []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(rooms) == 0 {
		for room := range t.clients[fd] {
			rooms = append(rooms, room)
		}
	}
	for _, room := range rooms {
		t.delete(fd, room)
	}
	return nil
}

func (t *TableStore) delete(fd int, room string) {
	if members, ok := t.rooms[room]; ok {
		delete(members, fd)
		if len(members) == 0 {
			delete(t.rooms, room)
		}
	}
	if joined, ok := t.clients[fd]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(t.clients, fd)
		}
	}
}

// Clients returns the fds currently in room.
func (t *TableStore) Clients(ctx context.Context, room string) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := t.rooms[room]
	fds := make([]int, 0, len(members))
	for fd := range members {
		fds = append(fds, fd)
	}
	return fds, nil
}

// Rooms returns the rooms fd currently belongs to.
func (t *TableStore) Rooms(ctx context.Context, fd int) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	joined := t.clients[fd]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	return rooms, nil
}
