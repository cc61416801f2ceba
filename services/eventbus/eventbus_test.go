package eventbus_test

import (
	"testing"

	"github.com/bsv-blockchain/fullnode/services/eventbus"
	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := eventbus.New(ulogger.TestLogger{})
	ch := b.Subscribe(eventbus.BlockConnected)

	b.Publish(eventbus.Event{Kind: eventbus.BlockConnected})

	ev := <-ch
	require.Equal(t, eventbus.BlockConnected, ev.Kind)
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	b := eventbus.New(ulogger.TestLogger{})
	ch := b.Subscribe(eventbus.TipChanged)

	b.Publish(eventbus.Event{Kind: eventbus.BlockConnected})

	select {
	case <-ch:
		t.Fatal("subscriber should not have received an event of a different kind")
	default:
	}
}

func TestSlowSubscriberIsDroppedWithoutBlockingPublisher(t *testing.T) {
	b := eventbus.New(ulogger.TestLogger{})
	ch := b.Subscribe(eventbus.BlockConnected)

	for i := 0; i < 1000; i++ {
		b.Publish(eventbus.Event{Kind: eventbus.BlockConnected})
	}

	_, ok := <-ch
	require.True(t, ok)

	for range ch {
	}
}
