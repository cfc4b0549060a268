package hub

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

var (
	mClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connected_clients", Help: "Currently subscribed stream clients.",
	})
	mPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_events_published_total", Help: "Events handed to at least the hub (connected or not).",
	})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_events_dropped_total", Help: "Events dropped because a subscriber buffer was full.",
	})
)

// Subscriber is one connected client stream. Events are delivered on a
// buffered channel; a subscriber that stops draining loses events instead of
// blocking the broadcast.
type Subscriber struct {
	userID int64
	ch     chan notification.Event
}

func (s *Subscriber) Events() <-chan notification.Event { return s.ch }

// Hub is the process-local connection registry for app-channel delivery.
// It is keyed by user id so a broadcast only reaches the owning user's
// streams. Delivery is fire-and-forget: with no subscribers the event is
// dropped, and clients backfill from the today endpoint on reconnect.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[*Subscriber]struct{}
	buf  int
	log  *zap.Logger
}

func New(log *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs: make(map[int64]map[*Subscriber]struct{}),
		buf:  buffer,
		log:  log.With(zap.String("component", "hub")),
	}
}

func (h *Hub) Subscribe(userID int64) *Subscriber {
	sub := &Subscriber{userID: userID, ch: make(chan notification.Event, h.buf)}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	mClients.Inc()
	h.log.Debug("subscriber registered", zap.Int64("user_id", userID))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	set, ok := h.subs[sub.userID]
	if ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sub.userID)
			}
			mClients.Dec()
		}
	}
	h.mu.Unlock()
}

// Publish broadcasts ev to every stream of userID without blocking.
func (h *Hub) Publish(userID int64, ev notification.Event) {
	mPublished.Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
			mDropped.Inc()
			h.log.Warn("subscriber buffer full, event dropped",
				zap.Int64("user_id", userID), zap.Int64("notification_id", ev.ID))
		}
	}
}

// Len reports the number of streams currently subscribed for userID.
func (h *Hub) Len(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
