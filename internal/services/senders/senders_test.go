package senders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/taskpilot/notifier/internal/config/notifier"
	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/hub"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	app := &AppSender{}
	r.Register(notification.ChannelApp, app)

	got, ok := r.Lookup(notification.ChannelApp)
	require.True(t, ok)
	assert.Same(t, app, got)

	_, ok = r.Lookup(notification.ChannelPush)
	assert.False(t, ok)
}

func TestAppSenderPublishesToOwner(t *testing.T) {
	h := hub.New(zap.NewNop(), 4)
	sub := h.Subscribe(7)
	defer h.Unsubscribe(sub)

	s := &AppSender{Hub: h}
	n := &notification.Notification{
		ID:      42,
		UserID:  7,
		TaskID:  1,
		Channel: notification.ChannelApp,
		Payload: notification.Payload{Message: "due soon", Title: "t"},
	}
	require.NoError(t, s.Send(context.Background(), n))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, int64(42), ev.ID)
		assert.Equal(t, "due soon", ev.Payload.Message)
		assert.Equal(t, "t", ev.Title)
	default:
		t.Fatal("event not delivered")
	}
}

func TestAppSenderNoSubscribersStillSucceeds(t *testing.T) {
	s := &AppSender{Hub: hub.New(zap.NewNop(), 4)}
	err := s.Send(context.Background(), &notification.Notification{UserID: 99})
	assert.NoError(t, err)
}

func TestMailerRejectsMissingRecipient(t *testing.T) {
	m := NewMailer(config.SMTP{Addr: "localhost:1025", From: "no-reply@x", Timeout: time.Second})
	err := m.Send(context.Background(), &notification.Notification{
		Channel: notification.ChannelEmail,
		Payload: notification.Payload{Message: "m"},
	})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestSubjectFor(t *testing.T) {
	rem := &notification.Notification{Type: notification.TypeReminder, Payload: notification.Payload{Title: "ship it"}}
	over := &notification.Notification{Type: notification.TypeOverdue, Payload: notification.Payload{Title: "ship it"}}

	assert.Equal(t, "Reminder: ship it", subjectFor(rem))
	assert.Equal(t, "Overdue: ship it", subjectFor(over))
}
