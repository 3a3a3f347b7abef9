package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanraft/district-cli/internal/model"
)

func event(runID string, completed int) model.ProgressEvent {
	return model.ProgressEvent{
		RunID:     runID,
		Stage:     model.StageAggregate,
		Completed: completed,
		Total:     10,
		Percent:   float64(completed) * 10,
		At:        time.Now().UTC(),
	}
}

func TestBroker_PublishAndSubscribe(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	for i := 1; i <= 3; i++ {
		b.Publish(event("run-1", i))
	}

	for i := 1; i <= 3; i++ {
		ev := <-ch
		assert.Equal(t, i, ev.Completed)
	}
}

func TestBroker_RunIsolation(t *testing.T) {
	b := NewBroker()
	chA, cancelA := b.Subscribe("run-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("run-b")
	defer cancelB()

	b.Publish(event("run-a", 1))

	assert.Len(t, chA, 1)
	assert.Len(t, chB, 0)
}

func TestBroker_SlowConsumerDropsEvents(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	// Publish past the buffer without draining; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 1; i <= subscriberBuffer+10; i++ {
			b.Publish(event("run-1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBroker_CloseRunClosesSubscribers(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")

	b.Publish(event("run-1", 1))
	b.CloseRun("run-1")

	// Buffered event still readable, then the channel reports closed.
	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 1, ev.Completed)
	_, ok = <-ch
	assert.False(t, ok)

	// Unsubscribing after CloseRun is a no-op, not a double close.
	cancel()

	// Publishing to a closed run goes nowhere.
	b.Publish(event("run-1", 2))
}

func TestBroker_CancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(event("run-1", 1))
}
