package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableStoreJoinAndMembers(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	require.NoError(t, store.Add(ctx, 1, "lobby"))
	require.NoError(t, store.Add(ctx, 2, "lobby"))

	fds, err := store.Clients(ctx, "lobby")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, fds)

	rooms, err := store.Rooms(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby"}, rooms)
}

func TestTableStoreJoinIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	require.NoError(t, store.Add(ctx, 1, "lobby"))
	require.NoError(t, store.Add(ctx, 1, "lobby"))

	fds, err := store.Clients(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fds)

	rooms, err := store.Rooms(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby"}, rooms)
}

func TestTableStoreDeleteAllEmptiesBothIndexes(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	require.NoError(t, store.AddAll(ctx, 1, []string{"a", "b", "c"}))
	require.NoError(t, store.Add(ctx, 2, "b"))

	require.NoError(t, store.DeleteAll(ctx, 1, nil))

	rooms, err := store.Rooms(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	for _, name := range []string{"a", "b", "c"} {
		fds, err := store.Clients(ctx, name)
		require.NoError(t, err)
		assert.NotContains(t, fds, 1, "fd 1 still member of %s", name)
	}

	// Unrelated membership survives.
	fds, err := store.Clients(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, fds)
}

func TestTableStoreDeleteAllSubset(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	require.NoError(t, store.AddAll(ctx, 1, []string{"a", "b", "c"}))
	require.NoError(t, store.DeleteAll(ctx, 1, []string{"a", "c"}))

	rooms, err := store.Rooms(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rooms)
}

func TestTableStoreEmptyRoomIsRemoved(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	require.NoError(t, store.Add(ctx, 1, "lobby"))
	require.NoError(t, store.Delete(ctx, 1, "lobby"))

	store.mu.RLock()
	_, exists := store.rooms["lobby"]
	store.mu.RUnlock()
	assert.False(t, exists)
}

func TestTableStoreRoomLimit(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{RoomRows: 2})

	require.NoError(t, store.Add(ctx, 1, "a"))
	require.NoError(t, store.Add(ctx, 1, "b"))

	err := store.Add(ctx, 1, "c")
	assert.ErrorIs(t, err, ErrTooManyRooms)

	// Rejected join applied nothing.
	rooms, _ := store.Rooms(ctx, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, rooms)

	// Existing memberships still idempotently accepted.
	require.NoError(t, store.Add(ctx, 1, "a"))
}

func TestTableStoreRoomSizeLimit(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{RoomSize: 2})

	require.NoError(t, store.Add(ctx, 1, "lobby"))
	require.NoError(t, store.Add(ctx, 2, "lobby"))

	err := store.Add(ctx, 3, "lobby")
	assert.ErrorIs(t, err, ErrRoomFull)

	rooms, _ := store.Rooms(ctx, 3)
	assert.Empty(t, rooms)
}

func TestTableStoreClientLimits(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{ClientRows: 1})

	require.NoError(t, store.Add(ctx, 1, "a"))
	assert.ErrorIs(t, store.Add(ctx, 2, "a"), ErrTooManyClients)

	store = NewTableStore(Settings{ClientSize: 1})
	require.NoError(t, store.Add(ctx, 1, "a"))
	assert.ErrorIs(t, store.Add(ctx, 1, "b"), ErrClientFull)
}

func TestTableStoreAddAllStopsAtCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{RoomRows: 2})

	err := store.AddAll(ctx, 1, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrTooManyRooms)

	// Memberships before the failure are intact and consistent.
	rooms, _ := store.Rooms(ctx, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, rooms)
	for _, name := range []string{"a", "b"} {
		fds, _ := store.Clients(ctx, name)
		assert.Equal(t, []int{1}, fds)
	}
}

func TestTableStoreConcurrentJoinLeave(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(Settings{})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(fd int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				store.Add(ctx, fd, "busy")
				store.Delete(ctx, fd, "busy")
			}
		}(i + 1)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	fds, err := store.Clients(ctx, "busy")
	require.NoError(t, err)
	assert.Empty(t, fds)
}
