package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

func ev(id int64) notification.Event {
	return notification.Event{ID: id, TaskID: 1, Channel: notification.ChannelApp,
		Payload: notification.EventPayload{Message: "m"}}
}

func TestPublishReachesOwnSubscribersOnly(t *testing.T) {
	h := New(zap.NewNop(), 4)
	alice := h.Subscribe(1)
	bob := h.Subscribe(2)
	defer h.Unsubscribe(alice)
	defer h.Unsubscribe(bob)

	h.Publish(1, ev(10))

	select {
	case got := <-alice.Events():
		assert.Equal(t, int64(10), got.ID)
	default:
		t.Fatal("alice did not receive the event")
	}
	assert.Empty(t, bob.Events())
}

func TestPublishFansOutToAllStreamsOfUser(t *testing.T) {
	h := New(zap.NewNop(), 4)
	a := h.Subscribe(1)
	b := h.Subscribe(1)
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(1, ev(10))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	h := New(zap.NewNop(), 4)
	h.Publish(99, ev(1)) // must not panic or block
	assert.Equal(t, 0, h.Len(99))
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := New(zap.NewNop(), 2)
	sub := h.Subscribe(1)
	defer h.Unsubscribe(sub)

	for i := int64(1); i <= 5; i++ {
		h.Publish(1, ev(i))
	}

	// only the first two fit; the rest were dropped without blocking
	require.Len(t, sub.Events(), 2)
	assert.Equal(t, int64(1), (<-sub.Events()).ID)
	assert.Equal(t, int64(2), (<-sub.Events()).ID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New(zap.NewNop(), 4)
	sub := h.Subscribe(1)
	assert.Equal(t, 1, h.Len(1))

	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Len(1))

	h.Publish(1, ev(10))
	assert.Empty(t, sub.Events())

	// double unsubscribe and nil are harmless
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)
}

func TestDefaultBuffer(t *testing.T) {
	h := New(zap.NewNop(), 0)
	sub := h.Subscribe(1)
	defer h.Unsubscribe(sub)
	assert.Equal(t, 16, cap(sub.ch))
}
