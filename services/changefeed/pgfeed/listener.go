// Package pgfeed is the postgres change feed: the notify_change() trigger publishes committed
// rows with pg_notify, and a pq.Listener fans them out to subscriptions.
// Rows too large for a notification are sent without their record and loaded by id.
package pgfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/services/changefeed/memfeed"
)

const (
	pingInterval = 90 * time.Second
	loadTimeout  = 5 * time.Second
)

// RowLoader loads a row as notify_change() would have encoded it.
type RowLoader interface {
	LoadRow(ctx context.Context, table, id string) (json.RawMessage, error)
}

type Feed struct {
	listener *pq.Listener
	rows     RowLoader
	broker   *memfeed.Broker
	logger   core.Logger
	channel  string

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ livesync.Feed = (*Feed)(nil)

// New starts listening on conf.Feed.Channel of the database at dsn.
func New(dsn string, rows RowLoader, conf core.FeedConfig, logger core.Logger) (*Feed, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(dsn, "dsn"),
		vala.IsNotNil(rows, "rows"),
		vala.StringNotEmpty(conf.Channel, "conf.Channel"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}

	f := &Feed{
		rows:    rows,
		broker:  memfeed.NewBroker(conf.BufferSize, logger),
		logger:  logger,
		channel: conf.Channel,
		stop:    make(chan struct{}),
	}
	f.listener = pq.NewListener(dsn, conf.MinReconnectInterval, conf.MaxReconnectInterval, f.onEvent)
	if err := f.listener.Listen(conf.Channel); err != nil {
		_ = f.listener.Close()
		return nil, errors.Wrapf(err, "listening on %s", conf.Channel)
	}

	f.wg.Add(1)
	go f.run()
	return f, nil
}

func eventStatus(ev pq.ListenerEventType) (livesync.Status, bool) {
	switch ev {
	case pq.ListenerEventDisconnected:
		return livesync.StatusDisconnected, true
	case pq.ListenerEventReconnected:
		return livesync.StatusReconnected, true
	case pq.ListenerEventConnectionAttemptFailed:
		return livesync.StatusFailed, true
	}
	return "", false
}

func (f *Feed) onEvent(ev pq.ListenerEventType, err error) {
	st, ok := eventStatus(ev)
	if !ok {
		return
	}
	if err != nil {
		f.logger.Warn(fmt.Sprintf("pgfeed: %s: %v", st, err), err)
	} else {
		f.logger.Info(fmt.Sprintf("pgfeed: %s", st))
	}
	f.broker.SetStatus(st)
}

func (f *Feed) run() {
	defer f.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// sent after a reconnect; the Reconnected event already reported it
				continue
			}
			ch, err := decode(n.Extra)
			if err != nil {
				f.logger.Warn(fmt.Sprintf("pgfeed: dropping notification: %v", err), err)
				continue
			}
			if ch, ok = f.complete(ch); ok {
				f.broker.Publish(ch)
			}
		case <-ticker.C:
			go func() { _ = f.listener.Ping() }()
		}
	}
}

// decode parses a notify_change() payload.
func decode(payload string) (livesync.Change, error) {
	var ch livesync.Change
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return livesync.Change{}, errors.Wrap(err, "decoding change")
	}
	switch ch.Op {
	case livesync.OpInsert, livesync.OpUpdate, livesync.OpDelete:
	default:
		return livesync.Change{}, errors.Errorf("unknown op %q", ch.Op)
	}
	if ch.Table == "" || ch.ID == "" {
		return livesync.Change{}, errors.New("change without table or id")
	}
	return ch, nil
}

// complete loads the record of an insert or update notified without it.
// Subscribers are told they lag when it cannot be loaded.
func (f *Feed) complete(ch livesync.Change) (livesync.Change, bool) {
	if len(ch.Record) > 0 || ch.Op == livesync.OpDelete {
		return ch, true
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	rec, err := f.rows.LoadRow(ctx, ch.Table, ch.ID)
	switch {
	case core.IsNotFound(err):
		// deleted meanwhile, its own notification follows
		return ch, false
	case err != nil:
		f.logger.Warn(fmt.Sprintf("pgfeed: loading %s %s: %v", ch.Table, ch.ID, err), err)
		f.broker.SetStatus(livesync.StatusLagged)
		return ch, false
	}
	ch.Record = rec
	return ch, true
}

func (f *Feed) Subscribe(ctx context.Context, channel string, tables ...string) (livesync.Subscription, error) {
	return f.broker.Subscribe(ctx, channel, tables...)
}

// Close stops listening and closes every subscription.
func (f *Feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.stop)
		err = f.listener.Close()
		f.wg.Wait()
		_ = f.broker.Close()
	})
	return errors.Wrap(err, "closing listener")
}
