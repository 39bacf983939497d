package memory

import (
	"context"
	"sync"

	"github.com/alanyang/job-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
)

var _ porteventbus.EventBus = (*EventBus)(nil)

// EventBus delivers events in-process. Each subscription has its own buffered queue and
// goroutine, so a slow handler never blocks Publish; a full buffer drops the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[event.Channel]map[*subscription]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[event.Channel]map[*subscription]struct{})}
}

const subscriptionBuffer = 256

func (eb *EventBus) Publish(_ context.Context, e event.Event) error {
	ch := event.ChannelFor(e.Type)
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for sub := range eb.subs[ch] {
		select {
		case sub.events <- e:
		default:
		}
	}
	return nil
}

func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		events: make(chan event.Event, subscriptionBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	eb.mu.Lock()
	if eb.subs[ch] == nil {
		eb.subs[ch] = make(map[*subscription]struct{})
	}
	eb.subs[ch][sub] = struct{}{}
	eb.mu.Unlock()

	go func() {
		defer func() {
			eb.mu.Lock()
			delete(eb.subs[ch], sub)
			eb.mu.Unlock()
			close(sub.done)
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case e := <-sub.events:
				handler(subCtx, e)
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	events chan event.Event
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
