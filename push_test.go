package ember

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embercore/ember/queue"
)

func pushPayload(d queue.PushData) queue.Payload {
	return queue.Payload{Action: queue.ActionPush, Data: d}
}

func TestPushBroadcastExcludesSender(t *testing.T) {
	s, _, _ := newTestServer(t)
	conns := map[int]*Conn{
		5: addOpenConn(s, 5),
		6: addOpenConn(s, 6),
		7: addOpenConn(s, 7),
	}

	s.handlePush(context.Background(), pushPayload(queue.PushData{
		Sender:    5,
		Broadcast: true,
		Event:     "news",
		Message:   "hi",
	}))

	assert.Empty(t, receivedFrames(conns[5]))
	assert.Equal(t, []string{`42["news","hi"]`}, receivedFrames(conns[6]))
	assert.Equal(t, []string{`42["news","hi"]`}, receivedFrames(conns[7]))
}

func TestPushDirectedReachesSenderToo(t *testing.T) {
	s, _, _ := newTestServer(t)
	sender := addOpenConn(s, 1)
	target := addOpenConn(s, 2)

	s.handlePush(context.Background(), pushPayload(queue.PushData{
		Sender:   1,
		FDs:      []int{2},
		Assigned: true,
		Event:    "dm",
		Message:  "yo",
	}))

	assert.Equal(t, []string{`42["dm","yo"]`}, receivedFrames(sender))
	assert.Equal(t, []string{`42["dm","yo"]`}, receivedFrames(target))
}

func TestPushAssignedEmptyStaysEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)
	bystander := addOpenConn(s, 1)

	s.handlePush(context.Background(), pushPayload(queue.PushData{
		Broadcast: true,
		Assigned:  true,
		Event:     "news",
		Message:   "nobody home",
	}))

	assert.Empty(t, receivedFrames(bystander))
}

func TestPushSkipsForeignFDs(t *testing.T) {
	s, _, _ := newTestServer(t)
	owned := addOpenConn(s, 1)

	assert.NotPanics(t, func() {
		s.handlePush(context.Background(), pushPayload(queue.PushData{
			FDs:      []int{1, 99},
			Assigned: true,
			Event:    "news",
			Message:  "hi",
		}))
	})

	assert.Equal(t, []string{`42["news","hi"]`}, receivedFrames(owned))
}

func TestPushSkipsNonOpenConns(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := addOpenConn(s, 1)
	c.setState(StateClosed)

	s.handlePush(context.Background(), pushPayload(queue.PushData{
		FDs:      []int{1},
		Assigned: true,
		Event:    "news",
		Message:  "hi",
	}))

	assert.Empty(t, receivedFrames(c))
}

func TestPushIgnoresForeignActions(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := addOpenConn(s, 1)

	s.handlePush(context.Background(), queue.Payload{
		Action: "reload",
		Data:   queue.PushData{FDs: []int{1}, Event: "news"},
	})

	assert.Empty(t, receivedFrames(c))
}
