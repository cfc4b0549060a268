package senders

import (
	"github.com/taskpilot/notifier/internal/domain/notification"
)

// Registry maps a channel to its delivery backend. Adding a channel means
// registering a Sender here; the scheduler's control flow never changes.
type Registry struct {
	m map[notification.Channel]notification.Sender
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[notification.Channel]notification.Sender)}
}

func (r *Registry) Register(ch notification.Channel, s notification.Sender) {
	r.m[ch] = s
}

func (r *Registry) Lookup(ch notification.Channel) (notification.Sender, bool) {
	s, ok := r.m[ch]
	return s, ok
}
