package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/writer-chat/internal/chat"
)

func TestPublish_ReachesSessionSubscribersOnly(t *testing.T) {
	b := New()
	a1 := b.Subscribe("a")
	a2 := b.Subscribe("a")
	other := b.Subscribe("b")

	b.Publish("a", chat.Event{Type: chat.EventCompleted})

	require.Equal(t, chat.EventCompleted, (<-a1).Type)
	require.Equal(t, chat.EventCompleted, (<-a2).Type)
	require.Empty(t, other)
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New()
	b.Publish("nobody", chat.Event{Type: chat.EventPending})
}

func TestPublish_DropsWhenSubscriberIsFull(t *testing.T) {
	b := New()
	ch := b.Subscribe("a")

	for range subscriberBuffer + 5 {
		b.Publish("a", chat.Event{Type: chat.EventPending})
	}
	require.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe("a")
	b.Unsubscribe("a", ch)

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after the last subscriber left must not panic.
	b.Publish("a", chat.Event{Type: chat.EventPending})
}

func TestClose_ClosesAllSessionChannels(t *testing.T) {
	b := New()
	c1 := b.Subscribe("a")
	c2 := b.Subscribe("a")
	b.Close("a")

	_, ok1 := <-c1
	_, ok2 := <-c2
	require.False(t, ok1)
	require.False(t, ok2)
}
