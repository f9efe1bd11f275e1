package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBroadcaster_SubscribeReplaysLastTick(t *testing.T) {
	b := NewProgressBroadcaster()
	b.Publish(Progress{SyncID: "s1", Stage: StageFetchingData, Percentage: 10})

	ch, cancel := b.Subscribe()
	defer cancel()

	select {
	case p := <-ch:
		assert.Equal(t, "s1", p.SyncID)
		assert.Equal(t, 10, p.Percentage)
	default:
		t.Fatal("expected the last tick to be replayed immediately on subscribe")
	}
}

func TestProgressBroadcaster_SubscribeBeforeAnyPublishGetsNothing(t *testing.T) {
	b := NewProgressBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	select {
	case p := <-ch:
		t.Fatalf("unexpected tick before any publish: %+v", p)
	default:
	}
}

func TestProgressBroadcaster_FansOutToMultipleSubscribers(t *testing.T) {
	b := NewProgressBroadcaster()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Progress{SyncID: "s1", Percentage: 50})

	p1 := <-ch1
	p2 := <-ch2
	assert.Equal(t, 50, p1.Percentage)
	assert.Equal(t, 50, p2.Percentage)
}

func TestProgressBroadcaster_DropsOldestWhenSubscriberBufferIsFull(t *testing.T) {
	b := NewProgressBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Buffer capacity is 8; publish well past it without ever draining ch.
	for i := 0; i < 20; i++ {
		b.Publish(Progress{SyncID: "s1", Percentage: i})
	}

	require.Len(t, ch, 8)
	last := <-ch
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, 19, last.Percentage, "the most recent tick must survive the drop-oldest eviction")
}

func TestProgressBroadcaster_Last(t *testing.T) {
	b := NewProgressBroadcaster()
	assert.Equal(t, "", b.Last().SyncID)

	b.Publish(Progress{SyncID: "s1", Percentage: 75})
	assert.Equal(t, 75, b.Last().Percentage)
}

func TestProgressBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewProgressBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Progress{SyncID: "s1", Percentage: 1})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
