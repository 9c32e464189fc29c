package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()

	var a, b []any
	bus.Subscribe(TopicQueueChanged, func(payload any) { a = append(a, payload) })
	bus.Subscribe(TopicQueueChanged, func(payload any) { b = append(b, payload) })
	bus.Subscribe(TopicSyncError, func(payload any) { t.Fatal("wrong topic delivered") })

	bus.Publish(TopicQueueChanged, 1)
	bus.Publish(TopicQueueChanged, 2)

	assert.Equal(t, []any{1, 2}, a)
	assert.Equal(t, []any{1, 2}, b)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() { bus.Publish(TopicSyncError, "dropped") })
}
