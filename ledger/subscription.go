package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/eventreg/eventreg/types"
)

// ErrSubscriptionLagging is reported when a subscriber does not keep up with
// sealed blocks and had to be dropped.
var ErrSubscriptionLagging = errors.New("subscriber is lagging behind")

const subscriptionBuffer = 256

// Subscription delivers sealed logs in order.
type Subscription struct {
	event string
	logs  chan types.Log
	err   chan error
	done  chan struct{}
	once  sync.Once
	unsub func(*Subscription)
}

func (s *Subscription) Logs() <-chan types.Log {
	return s.logs
}

// Err yields at most one error and is closed when the subscription ends.
func (s *Subscription) Err() <-chan error {
	return s.err
}

func (s *Subscription) Unsubscribe() {
	s.unsub(s)
}

func (s *Subscription) close(err error) {
	s.once.Do(func() {
		if err != nil {
			s.err <- err
		}
		close(s.err)
		close(s.logs)
		close(s.done)
	})
}

// Subscribe delivers logs named event (all logs if empty) sealed after the
// call, until ctx is done or Unsubscribe is called.
func (l *Ledger) Subscribe(ctx context.Context, event string) *Subscription {
	sub := &Subscription{
		event: event,
		logs:  make(chan types.Log, subscriptionBuffer),
		err:   make(chan error, 1),
		done:  make(chan struct{}),
		unsub: l.unsubscribe,
	}
	l.subsMu.Lock()
	l.subs[sub] = struct{}{}
	l.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub
}

func (l *Ledger) unsubscribe(sub *Subscription) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	delete(l.subs, sub)
	sub.close(nil)
}

func (l *Ledger) publish(logs []types.Log) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for sub := range l.subs {
		for _, lg := range logs {
			if sub.event != "" && sub.event != lg.Event {
				continue
			}
			select {
			case sub.logs <- lg:
			default:
				delete(l.subs, sub)
				sub.close(ErrSubscriptionLagging)
			}
			if _, ok := l.subs[sub]; !ok {
				break
			}
		}
	}
}
