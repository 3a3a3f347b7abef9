package pipeline

import (
	"sync"

	"github.com/beanraft/district-cli/internal/model"
)

// subscriberBuffer bounds each subscriber channel. A consumer that falls
// further behind than this loses events rather than stalling the run.
const subscriberBuffer = 64

// Broker fans progress events out to per-run subscribers. Publishing never
// blocks: slow consumers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.ProgressEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan model.ProgressEvent]struct{})}
}

// Subscribe registers a consumer for one run's events. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call after CloseRun.
func (b *Broker) Subscribe(runID string) (<-chan model.ProgressEvent, func()) {
	ch := make(chan model.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[runID]
	if !ok {
		set = make(map[chan model.ProgressEvent]struct{})
		b.subs[runID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[runID]
		if !ok {
			return
		}
		if _, live := set[ch]; !live {
			return
		}
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, runID)
		}
		close(ch)
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its run, dropping it
// for any subscriber whose buffer is full.
func (b *Broker) Publish(ev model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CloseRun closes every subscriber channel for the run, signalling that no
// further events will arrive.
func (b *Broker) CloseRun(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		close(ch)
	}
	delete(b.subs, runID)
}
