package ember

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/queue"
	"github.com/embercore/ember/room"
)

type failingStore struct {
	room.Store
}

func (failingStore) Clients(context.Context, string) ([]int, error) {
	return nil, errors.New("membership backend down")
}

func TestEmitBareBroadcast(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{}
	e := &Emitter{store: room.NewTableStore(room.Settings{}), queue: q, sender: 5}

	accepted, err := e.Broadcast().Emit(ctx, "news", "hello")
	require.NoError(t, err)
	assert.True(t, accepted)

	payloads := q.all()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Equal(t, queue.ActionPush, p.Action)
	assert.Equal(t, 5, p.Data.Sender)
	assert.Empty(t, p.Data.FDs)
	assert.True(t, p.Data.Broadcast)
	assert.False(t, p.Data.Assigned, "a bare broadcast carries no assigned targets")
	assert.Equal(t, "news", p.Data.Event)
	assert.Equal(t, "hello", p.Data.Message)
}

func TestEmitResolvesRoomsAndDedupes(t *testing.T) {
	ctx := context.Background()
	store := room.NewTableStore(room.Settings{})
	require.NoError(t, store.Add(ctx, 2, "lobby"))
	require.NoError(t, store.Add(ctx, 3, "lobby"))

	q := &captureQueue{}
	e := NewEmitter(store, q)

	accepted, err := e.To(2, 4, 4).ToRooms("lobby", "lobby").Emit(ctx, "state", nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	payloads := q.all()
	require.Len(t, payloads, 1)
	assert.ElementsMatch(t, []int{2, 3, 4}, payloads[0].Data.FDs)
	assert.True(t, payloads[0].Data.Assigned)
	assert.False(t, payloads[0].Data.Broadcast)
}

func TestEmitEmptyTargetsRejectedLocally(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{}
	e := NewEmitter(room.NewTableStore(room.Settings{}), q)

	accepted, err := e.ToRooms("ghost-town").Emit(ctx, "news", "anyone?")
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Empty(t, q.all(), "a rejected emit produces no queue traffic")
}

func TestEmitBuilderResetsBetweenEmits(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{}
	e := NewEmitter(room.NewTableStore(room.Settings{}), q)

	accepted, err := e.Broadcast().To(9).Emit(ctx, "first", nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = e.Emit(ctx, "second", nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	payloads := q.all()
	require.Len(t, payloads, 2)
	second := payloads[1].Data
	assert.Empty(t, second.FDs)
	assert.False(t, second.Broadcast)
	assert.False(t, second.Assigned)
}

func TestEmitBuilderResetsAfterRejection(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{}
	e := NewEmitter(room.NewTableStore(room.Settings{}), q)

	accepted, err := e.ToRooms("empty").Emit(ctx, "first", nil)
	require.NoError(t, err)
	require.False(t, accepted)

	accepted, err = e.Emit(ctx, "second", nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	payloads := q.all()
	require.Len(t, payloads, 1)
	assert.False(t, payloads[0].Data.Assigned)
}

func TestEmitQueueErrorPropagates(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{enqueueErr: errors.New("broker gone")}
	e := NewEmitter(room.NewTableStore(room.Settings{}), q)

	accepted, err := e.Broadcast().Emit(ctx, "news", nil)
	assert.Error(t, err)
	assert.False(t, accepted)
}

func TestEmitStoreErrorPropagates(t *testing.T) {
	ctx := context.Background()
	q := &captureQueue{}
	e := NewEmitter(failingStore{}, q)

	accepted, err := e.ToRooms("lobby").Emit(ctx, "news", nil)
	assert.Error(t, err)
	assert.False(t, accepted)
	assert.Empty(t, q.all())
}

func TestEmitterRoomMembership(t *testing.T) {
	ctx := context.Background()
	store := room.NewTableStore(room.Settings{})
	e := &Emitter{store: store, queue: &captureQueue{}, sender: 7}

	require.NoError(t, e.Join(ctx, "a"))
	require.NoError(t, e.JoinAll(ctx, []string{"b", "c"}))

	rooms, err := e.Rooms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, rooms)

	require.NoError(t, e.Leave(ctx, "b"))
	rooms, err = e.Rooms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, rooms)

	require.NoError(t, e.LeaveAll(ctx))
	rooms, err = e.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
