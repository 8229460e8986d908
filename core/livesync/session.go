package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/query"
)

type State int32

const (
	StateIdle State = iota
	StateSeeding
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", s)
}

var (
	ErrNotLive = errors.New("session is not live")
	// ErrSuperseded is returned by Enter when the session was closed or moved to another context meanwhile.
	ErrSuperseded = errors.New("session context changed")
)

// Gateway runs point-in-time reads used to seed a Session.
type Gateway[R Record] interface {
	FetchInitial(ctx context.Context, q query.Query) ([]R, error)
}

// View describes what a Session tracks: a context, the query seeding it and the record ordering.
type View[R Record] struct {
	Context Context
	Query   query.Query
	Less    func(a, b R) bool
	// Enrich, if set, decorates records decoded from changes (e.g. display labels).
	Enrich func(ctx context.Context, r *R) error
}

type Options struct {
	Logger core.Logger
	// SubscribeFirst opens the subscription before the initial fetch and merges the changes received meanwhile.
	// When false, changes committed between the fetch and the subscription are missed until the next Refetch.
	SubscribeFirst bool
}

// Session keeps the ordered records of one context in sync with the store:
// Idle -> Seeding -> Live -> Closed. Entering another context closes the current one first.
type Session[R Record] struct {
	gw             Gateway[R]
	feed           Feed
	logger         core.Logger
	subscribeFirst bool

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped on every Enter & Close; completions of older generations are discarded
	view    View[R]
	set     *Set[R]
	sub     Subscription
	cancel  context.CancelFunc
	status  Status
	changed chan struct{}
	// changes applied while a Refetch is in flight, replayed over its result
	fetchLogs []*fetchLog[R]
}

type fetchLog[R Record] struct {
	entries []logEntry[R]
}

type logEntry[R Record] struct {
	op Op
	id string
	r  R
}

func (s *Session[R]) record(e logEntry[R]) {
	for _, l := range s.fetchLogs {
		l.entries = append(l.entries, e)
	}
}

// reseed seeds the set with records, then replays l so the changes applied meanwhile win.
func (s *Session[R]) reseed(records []R, l *fetchLog[R]) {
	s.set.Seed(records)
	for _, e := range l.entries {
		switch e.op {
		case OpInsert, OpUpdate:
			if !s.set.ApplyUpdate(e.r) {
				s.set.ApplyInsert(e.r)
			}
		case OpDelete:
			s.set.ApplyDelete(e.id)
		}
	}
}

func (s *Session[R]) dropLog(l *fetchLog[R]) {
	for i, other := range s.fetchLogs {
		if other == l {
			s.fetchLogs = append(s.fetchLogs[:i], s.fetchLogs[i+1:]...)
			return
		}
	}
}

func NewSession[R Record](gw Gateway[R], feed Feed, opts Options) (*Session[R], error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(gw, "gw"),
		vala.IsNotNil(feed, "feed"),
		vala.IsNotNil(opts.Logger, "opts.Logger"),
	).Check(); err != nil {
		return nil, err
	}
	return &Session[R]{
		gw:             gw,
		feed:           feed,
		logger:         opts.Logger,
		subscribeFirst: opts.SubscribeFirst,
		state:          StateIdle,
		set:            NewSet[R](nil),
		changed:        make(chan struct{}, 1),
	}, nil
}

// Enter closes the current context, if any, and seeds then subscribes to view's context.
// On failure the error is returned and the session stays Seeding with no subscription; call Enter again or Close.
func (s *Session[R]) Enter(ctx context.Context, view View[R]) error {
	if view.Context.IsZero() {
		return errors.New("entering session: empty context")
	}
	if view.Query.Table.Name == "" {
		q, err := view.Context.Query()
		if err != nil {
			return errors.Wrap(err, "building context query")
		}
		view.Query = q
	}

	s.mu.Lock()
	s.closeLocked()
	s.gen++
	gen := s.gen
	s.view = view
	s.set = NewSet(view.Less)
	s.state = StateSeeding
	s.mu.Unlock()
	s.notify()

	channel := view.Context.Name()
	table := view.Query.Table.Name

	var sub Subscription
	var err error
	if s.subscribeFirst {
		if sub, err = s.feed.Subscribe(ctx, channel, table); err != nil {
			return errors.Wrapf(err, "subscribing to %s", channel)
		}
	}

	records, err := s.gw.FetchInitial(ctx, view.Query)
	if err != nil {
		closeSub(sub)
		return errors.Wrapf(err, "fetching %s", channel)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		closeSub(sub)
		return ErrSuperseded
	}
	s.set.Seed(records)
	s.mu.Unlock()
	s.notify()

	if sub == nil {
		if sub, err = s.feed.Subscribe(ctx, channel, table); err != nil {
			return errors.Wrapf(err, "subscribing to %s", channel)
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		closeSub(sub)
		return ErrSuperseded
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.sub = sub
	s.cancel = cancel
	s.state = StateLive
	s.status = StatusConnected
	s.mu.Unlock()

	go s.loop(loopCtx, gen, sub)
	s.notify()
	s.logger.Debug(fmt.Sprintf("sync session live on %s", channel), map[string]interface{}{"records": len(records)})
	return nil
}

// Close releases the subscription and discards the state. Safe to call many times.
func (s *Session[R]) Close() error {
	s.mu.Lock()
	err := s.closeLocked()
	s.gen++
	s.state = StateClosed
	s.set = NewSet[R](nil)
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Session[R]) closeLocked() error {
	s.fetchLogs = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	var err error
	if s.sub != nil {
		err = s.sub.Close()
		s.sub = nil
	}
	if s.state == StateLive || s.state == StateSeeding {
		s.state = StateClosed
	}
	return err
}

func closeSub(sub Subscription) {
	if sub != nil {
		_ = sub.Close()
	}
}

func (s *Session[R]) loop(ctx context.Context, gen uint64, sub Subscription) {
	changes, statuses := sub.Changes(), sub.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			s.apply(ctx, gen, ch)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			s.onStatus(ctx, gen, st)
		}
	}
}

func (s *Session[R]) viewOf(gen uint64) (View[R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateLive {
		return View[R]{}, false
	}
	return s.view, true
}

func (s *Session[R]) apply(ctx context.Context, gen uint64, ch Change) {
	view, ok := s.viewOf(gen)
	if !ok || ch.Table != view.Query.Table.Name {
		return
	}

	var changed bool
	switch ch.Op {
	case OpDelete:
		matches := true
		if len(ch.Record) > 0 {
			if row, err := ch.Row(); err == nil {
				matches = view.Query.Match(row)
			}
		}
		s.mu.Lock()
		if s.gen == gen && (matches || s.set.Has(ch.ID)) {
			changed = s.set.ApplyDelete(ch.ID)
			s.record(logEntry[R]{op: OpDelete, id: ch.ID})
		}
		s.mu.Unlock()

	case OpInsert, OpUpdate:
		row, err := ch.Row()
		if err != nil {
			s.logger.Warn(fmt.Sprintf("%s: dropping %s %s: %v", view.Context, ch.Op, ch.ID, err), err)
			return
		}
		if !view.Query.Match(row) {
			return
		}
		var r R
		if err = json.Unmarshal(ch.Record, &r); err != nil {
			s.logger.Warn(fmt.Sprintf("%s: decoding %s %s: %v", view.Context, ch.Op, ch.ID, err), err)
			return
		}
		if view.Enrich != nil {
			if err = view.Enrich(ctx, &r); err != nil {
				s.logger.Warn(fmt.Sprintf("%s: enriching %s: %v", view.Context, ch.ID, err), err)
			}
		}

		s.mu.Lock()
		if s.gen == gen {
			if ch.Op == OpInsert {
				changed = s.set.ApplyInsert(r)
			} else {
				changed = s.set.ApplyUpdate(r)
			}
			if changed {
				s.record(logEntry[R]{op: ch.Op, id: ch.ID, r: r})
			}
		}
		s.mu.Unlock()

	default:
		s.logger.Warn(fmt.Sprintf("%s: unknown change op %q", view.Context, ch.Op))
	}

	if changed {
		s.notify()
	}
}

func (s *Session[R]) onStatus(ctx context.Context, gen uint64, st Status) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.status = st
	channel := s.view.Context.Name()
	s.mu.Unlock()
	s.notify()

	switch st {
	case StatusReconnected, StatusLagged:
		// changes may have been missed
		s.logger.Info(fmt.Sprintf("%s: feed %s, re-fetching", channel, st))
		if err := s.Refetch(ctx); err != nil && errors.Cause(err) != ErrNotLive {
			s.logger.Error(fmt.Sprintf("%s: re-fetching: %v", channel, err), err)
		}
	case StatusDisconnected, StatusFailed:
		s.logger.Warn(fmt.Sprintf("%s: feed %s", channel, st))
	}
}

// Refetch replaces the records with a fresh authoritative read.
// Changes applied while the read runs are replayed over its result.
// A failure leaves the session and its records unchanged.
func (s *Session[R]) Refetch(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return ErrNotLive
	}
	gen, q := s.gen, s.view.Query
	l := &fetchLog[R]{}
	s.fetchLogs = append(s.fetchLogs, l)
	s.mu.Unlock()

	records, err := s.gw.FetchInitial(ctx, q)

	s.mu.Lock()
	s.dropLog(l)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "re-fetching records")
	}
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.reseed(records, l)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Optimistic applies op locally, then runs remote.
// When remote fails the records are re-fetched and remote's error is returned.
func (s *Session[R]) Optimistic(ctx context.Context, op Op, r R, remote func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return ErrNotLive
	}
	gen := s.gen
	switch op {
	case OpInsert:
		s.set.ApplyInsert(r)
	case OpUpdate:
		s.set.ApplyUpdate(r)
	case OpDelete:
		s.set.remove(r.RecordID()) // the delete notification tombstones it
	default:
		s.mu.Unlock()
		return errors.Errorf("unknown op %q", op)
	}
	s.mu.Unlock()
	s.notify()

	if err := remote(ctx); err != nil {
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if !stale {
			if rErr := s.Refetch(ctx); rErr != nil {
				s.logger.Error(fmt.Sprintf("restoring records after failed %s: %v", op, rErr), rErr)
			}
		}
		return err
	}
	return nil
}

func (s *Session[R]) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Changed receives a value whenever the records, the state or the feed status changed. Notifications coalesce.
func (s *Session[R]) Changed() <-chan struct{} { return s.changed }

func (s *Session[R]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session[R]) FeedStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session[R]) Context() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Context
}

// Records returns a copy of the ordered records.
func (s *Session[R]) Records() []R {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Records()
}

// Record returns the held record with id.
func (s *Session[R]) Record(id string) (R, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Get(id)
}

// Snapshot returns the context, state and records atomically.
func (s *Session[R]) Snapshot() (Context, State, []R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Context, s.state, s.set.Records()
}
