// Package memfeed is an in-process change feed. Stores without server side notifications
// (in-memory, sqlite) publish their committed writes to a Broker.
package memfeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
)

var ErrClosed = errors.New("feed closed")

type Broker struct {
	mu         sync.RWMutex
	subs       map[*subscription]struct{}
	bufferSize int
	closed     bool
	logger     core.Logger
}

var (
	_ livesync.Feed      = (*Broker)(nil)
	_ livesync.Publisher = (*Broker)(nil)
)

func NewBroker(bufferSize int, logger core.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broker{
		subs:       make(map[*subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (b *Broker) Subscribe(ctx context.Context, channel string, tables ...string) (livesync.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		broker:  b,
		channel: channel,
		tables:  make(map[string]struct{}, len(tables)),
		changes: make(chan livesync.Change, b.bufferSize),
		status:  make(chan livesync.Status, 4),
	}
	for _, t := range tables {
		sub.tables[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	sub.status <- livesync.StatusConnected
	return sub, nil
}

// Publish fans ch out to every subscription on ch.Table. It never blocks:
// a subscriber with a full buffer loses the change and is told it lagged.
func (b *Broker) Publish(ch livesync.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(ch.Table) {
			continue
		}
		select {
		case sub.changes <- ch:
		default:
			if b.logger != nil {
				b.logger.Warn(fmt.Sprintf("memfeed: %s lagging, dropped %s %s", sub.channel, ch.Op, ch.ID))
			}
			sub.sendStatus(livesync.StatusLagged)
		}
	}
}

// SetStatus reports st to every subscription.
func (b *Broker) SetStatus(st livesync.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.sendStatus(st)
	}
}

// Subscribers returns the number of open subscriptions, optionally only those on channel.
func (b *Broker) Subscribers(channel ...string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(channel) == 0 {
		return len(b.subs)
	}
	var n int
	for sub := range b.subs {
		if sub.channel == channel[0] {
			n++
		}
	}
	return n
}

// Close closes every subscription; later Subscribe calls fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.closeLocked()
	}
	return nil
}

type subscription struct {
	broker  *Broker
	channel string
	tables  map[string]struct{}
	changes chan livesync.Change
	status  chan livesync.Status
	once    sync.Once
}

func (s *subscription) wants(table string) bool {
	if len(s.tables) == 0 {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

func (s *subscription) sendStatus(st livesync.Status) {
	select {
	case s.status <- st:
	default:
	}
}

func (s *subscription) Changes() <-chan livesync.Change { return s.changes }
func (s *subscription) Status() <-chan livesync.Status  { return s.status }

func (s *subscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.closeLocked()
	return nil
}

// closeLocked must be called with the broker's lock held.
func (s *subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.broker.subs, s)
		close(s.changes)
		close(s.status)
	})
}
