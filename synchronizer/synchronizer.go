package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/types"
)

//go:generate mockgen -package mocks -destination mocks/synchronizer.go . Gateway,Presenter

// Gateway is the access to the ledger the synchronizer reads from.
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// QueryEvents returns the logs of blocks [from, to], in no particular order.
	QueryEvents(ctx context.Context, name string, from, to uint64) ([]types.Log, error)
	// Subscribe delivers new logs at least once. A log with Removed set
	// withdraws a log delivered earlier.
	Subscribe(ctx context.Context, name string, sink chan<- types.Log) (types.Subscription, error)
}

// Presenter receives the view maintained by the synchronizer. All calls are
// made from the apply worker, one at a time.
type Presenter interface {
	Snapshot(Snapshot)
	Delta(Delta)
	Status(Status)
}

var ErrSubscriptionClosed = errors.New("subscription closed by the gateway")

var (
	appliedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "applied_total",
		Help:      "Number of events applied to the projection",
	})

	retractedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "retracted_total",
		Help:      "Number of events retracted from the projection",
	})

	duplicatesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "duplicates_total",
		Help:      "Number of deliveries of an already applied event",
	})

	participantsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "participants",
		Help:      "Number of participants in the projection",
	})

	watermarkMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "watermark_block",
		Help:      "Block of the highest applied event",
	})

	resetsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "sync",
		Name:      "resets_total",
		Help:      "Number of projection resets",
	})
)

type State int

const (
	StateSyncing State = iota
	StateLive
	StateDegraded
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateResetting:
		return "resetting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the health of the synchronization. Err is the last failure
// while degraded.
type Status struct {
	State   State
	ChainID uint64
	Err     error
}

type Snapshot struct {
	ChainID      uint64
	Head         uint64
	Watermark    types.Key
	HasWatermark bool
	Participants []Entry
}

type itemKind int

const (
	itemBatch itemKind = iota
	itemLog
	itemSubscribed
	itemFailure
)

type item struct {
	gen  uint64
	kind itemKind

	// itemBatch
	logs      []types.Log
	from, to  uint64
	initial   bool
	reconcile bool

	// itemLog
	log types.Log

	// itemFailure
	err     error
	dropped bool
}

type resetRequest struct {
	chainID uint64
	done    chan struct{}
}

// generation is one run of the startup protocol. A reset ends the current
// generation and starts the next one; items of an ended generation are
// discarded by the worker.
type generation struct {
	id     uint64
	queue  chan<- item
	cancel context.CancelFunc
	eg     *errgroup.Group

	// ready is closed after the first subscription attempt.
	ready     chan struct{}
	readyOnce sync.Once

	// owned by the worker
	caughtUp   bool
	subscribed bool
	fetchErr   error
	subErr     error
	status     Status
	reported   bool
}

func (g *generation) markReady() {
	g.readyOnce.Do(func() { close(g.ready) })
}

func (g *generation) enqueue(ctx context.Context, it item) bool {
	it.gen = g.id
	select {
	case g.queue <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *generation) stop() {
	g.cancel()
	_ = g.eg.Wait()
}

// Synchronizer keeps a deduplicated view of the Registered events of a
// ledger, merging a historical query with a live subscription.
type Synchronizer struct {
	gateway   Gateway
	presenter Presenter
	cfg       Config

	queue  chan item
	resets chan resetRequest

	// owned by the worker
	projection *Projection
	chainID    uint64
	head       uint64
	lastGen    uint64

	mu        sync.RWMutex
	published Snapshot
}

type newSynchronizerOptionFunc func(*Synchronizer)

func WithConfig(cfg Config) newSynchronizerOptionFunc {
	return func(s *Synchronizer) {
		s.cfg = cfg
	}
}

// WithChainID labels the initial projection.
func WithChainID(id uint64) newSynchronizerOptionFunc {
	return func(s *Synchronizer) {
		s.chainID = id
	}
}

func New(gateway Gateway, presenter Presenter, opts ...newSynchronizerOptionFunc) *Synchronizer {
	s := &Synchronizer{
		gateway:    gateway,
		presenter:  presenter,
		cfg:        DefaultConfig(),
		resets:     make(chan resetRequest),
		projection: NewProjection(),
	}
	for _, opt := range opts {
		opt(s)
	}
	defaults := DefaultConfig()
	if s.cfg.QueueSize <= 0 {
		s.cfg.QueueSize = defaults.QueueSize
	}
	if s.cfg.InitialInterval <= 0 {
		s.cfg.InitialInterval = defaults.InitialInterval
	}
	if s.cfg.MaxInterval < s.cfg.InitialInterval {
		s.cfg.MaxInterval = s.cfg.InitialInterval
	}
	s.queue = make(chan item, s.cfg.QueueSize)
	s.published = Snapshot{ChainID: s.chainID}
	return s
}

// Run applies events until ctx is done. Gateway failures are retried and
// reported as a degraded status; they never end Run.
func (s *Synchronizer) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("synchronizer")
	ctx = logging.NewContext(ctx, logger)
	logger.Info("starting", zap.Inline(s.cfg), zap.Uint64("chain_id", s.chainID))

	gen := s.start(ctx)
	defer func() {
		gen.stop()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping")
			return nil
		case req := <-s.resets:
			gen.stop()
			s.reset(ctx, req.chainID)
			gen = s.start(ctx)
			close(req.done)
		case it := <-s.queue:
			if it.gen != gen.id {
				logger.Debug("discarding item of a previous generation", zap.Uint64("generation", it.gen))
				continue
			}
			s.handle(ctx, gen, it)
		}
	}
}

// Reset discards the projection and restarts synchronization for chainID.
// It returns after the previous generation stopped and an empty snapshot was
// published. Run must be running.
func (s *Synchronizer) Reset(ctx context.Context, chainID uint64) error {
	req := resetRequest{chainID: chainID, done: make(chan struct{})}
	select {
	case s.resets <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) start(ctx context.Context) *generation {
	s.lastGen++
	gctx, cancel := context.WithCancel(ctx)
	eg, gctx := errgroup.WithContext(gctx)
	g := &generation{
		id:     s.lastGen,
		queue:  s.queue,
		cancel: cancel,
		eg:     eg,
		ready:  make(chan struct{}),
	}
	eg.Go(func() error {
		s.catchUp(gctx, g)
		return nil
	})
	eg.Go(func() error {
		s.subscribe(gctx, g)
		return nil
	})
	s.updateStatus(g)
	return g
}

func (s *Synchronizer) reset(ctx context.Context, chainID uint64) {
	logging.FromContext(ctx).Info("resetting projection",
		zap.Uint64("from_chain_id", s.chainID),
		zap.Uint64("to_chain_id", chainID),
	)
	resetsMetric.Inc()
	s.chainID = chainID
	s.head = 0
	s.projection = NewProjection()
	s.publish()
	s.presenter.Status(Status{State: StateResetting, ChainID: chainID})
	s.presenter.Snapshot(s.snapshot())
}

// catchUp runs the historical part of the startup protocol. It waits for the
// first subscription attempt so that nothing falls between the two.
func (s *Synchronizer) catchUp(ctx context.Context, g *generation) {
	select {
	case <-g.ready:
	case <-ctx.Done():
		return
	}
	it, err := s.fetch(ctx, g, s.cfg.windowStart)
	if err != nil {
		return
	}
	it.initial = true
	g.enqueue(ctx, it)
}

// gapFill re-queries the blocks a dropped subscription may have missed,
// starting below the watermark to recheck the provisional range.
func (s *Synchronizer) gapFill(ctx context.Context, g *generation) {
	it, err := s.fetch(ctx, g, func(head uint64) uint64 {
		from := s.cfg.windowStart(head)
		if wm, ok := s.Watermark(); ok && wm.Block > s.cfg.Confirmations {
			from = max(from, wm.Block-s.cfg.Confirmations)
		}
		return min(from, head)
	})
	if err != nil {
		return
	}
	it.reconcile = true
	g.enqueue(ctx, it)
}

func (s *Synchronizer) fetch(ctx context.Context, g *generation, floor func(head uint64) uint64) (item, error) {
	return retry(ctx, g, s.cfg, func() (item, error) {
		head, err := s.gateway.BlockNumber(ctx)
		if err != nil {
			return item{}, fmt.Errorf("get block number: %w", err)
		}
		from := floor(head)
		logs, err := s.gateway.QueryEvents(ctx, types.EventRegistered, from, head)
		if err != nil {
			return item{}, fmt.Errorf("query events in [%d, %d]: %w", from, head, err)
		}
		types.SortLogs(logs)
		logging.FromContext(ctx).Debug("fetched events",
			zap.Uint64("from", from),
			zap.Uint64("to", head),
			zap.Int("count", len(logs)),
		)
		return item{kind: itemBatch, logs: logs, from: from, to: head}, nil
	}, false)
}

// subscribe keeps a live subscription open for the lifetime of the generation.
func (s *Synchronizer) subscribe(ctx context.Context, g *generation) {
	logger := logging.FromContext(ctx)
	attempts := 0
	for ctx.Err() == nil {
		sink := make(chan types.Log, s.cfg.QueueSize)
		sub, err := retry(ctx, g, s.cfg, func() (types.Subscription, error) {
			attempts++
			sub, err := s.gateway.Subscribe(ctx, types.EventRegistered, sink)
			g.markReady()
			if err != nil {
				return nil, fmt.Errorf("subscribe: %w", err)
			}
			return sub, nil
		}, true)
		if err != nil {
			return
		}
		logger.Debug("subscription opened", zap.Int("attempts", attempts))
		if !g.enqueue(ctx, item{kind: itemSubscribed}) {
			sub.Unsubscribe()
			return
		}
		if attempts > 1 {
			g.eg.Go(func() error {
				s.gapFill(ctx, g)
				return nil
			})
		}
		if !s.pump(ctx, g, sub, sink) {
			return
		}
	}
}

// pump forwards live logs to the worker until the subscription drops. It
// returns false when ctx is done.
func (s *Synchronizer) pump(ctx context.Context, g *generation, sub types.Subscription, sink <-chan types.Log) bool {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return false
		case lg := <-sink:
			if !g.enqueue(ctx, item{kind: itemLog, log: lg}) {
				return false
			}
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = ErrSubscriptionClosed
			}
			for drained := false; !drained; {
				select {
				case lg := <-sink:
					if !g.enqueue(ctx, item{kind: itemLog, log: lg}) {
						return false
					}
				default:
					drained = true
				}
			}
			logging.FromContext(ctx).Warn("subscription dropped", zap.Error(err))
			return g.enqueue(ctx, item{kind: itemFailure, err: fmt.Errorf("subscription dropped: %w", err), dropped: true})
		}
	}
}

// retry runs op until it succeeds or ctx is done, reporting every failure to
// the worker.
func retry[T any](ctx context.Context, g *generation, cfg Config, op func() (T, error), subscription bool) (T, error) {
	logger := logging.FromContext(ctx)
	for {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.InitialInterval
		b.MaxInterval = cfg.MaxInterval
		res, err := backoff.Retry[T](ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Warn("gateway call failed", zap.Error(err), zap.Duration("retry_in", next))
				g.enqueue(ctx, item{kind: itemFailure, err: err, dropped: subscription})
			}),
		)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, g *generation, it item) {
	logger := logging.FromContext(ctx)
	switch it.kind {
	case itemBatch:
		var delta Delta
		present := make(map[types.Key]struct{}, len(it.logs))
		for _, lg := range it.logs {
			if lg.Removed {
				delta = delta.merge(s.remove(lg))
				continue
			}
			present[lg.Key()] = struct{}{}
			delta = delta.merge(s.apply(lg))
		}
		if it.reconcile {
			for _, key := range s.projection.KeysBetween(it.from, it.to) {
				if _, ok := present[key]; !ok {
					logger.Info("retracting event missing from re-query", zap.Stringer("key", key))
					delta = delta.merge(s.retract(key))
				}
			}
		}
		s.head = max(s.head, it.to)
		g.fetchErr = nil
		s.publish()
		if it.initial {
			g.caughtUp = true
			logger.Info("caught up",
				zap.Uint64("head", s.head),
				zap.Int("participants", s.projection.Count()),
			)
			s.presenter.Snapshot(s.snapshot())
		} else {
			s.emit(g, delta)
		}
	case itemLog:
		var delta Delta
		if it.log.Removed {
			delta = s.remove(it.log)
		} else {
			delta = s.apply(it.log)
			s.head = max(s.head, it.log.BlockNumber)
		}
		s.publish()
		s.emit(g, delta)
	case itemSubscribed:
		g.subscribed = true
		g.subErr = nil
	case itemFailure:
		if it.dropped {
			g.subscribed = false
			g.subErr = it.err
		} else {
			g.fetchErr = it.err
		}
	}
	s.updateStatus(g)
}

func (s *Synchronizer) apply(lg types.Log) Delta {
	delta, changed := s.projection.Apply(lg)
	if !changed {
		duplicatesMetric.Inc()
		return delta
	}
	appliedMetric.Inc()
	return delta
}

func (s *Synchronizer) retract(key types.Key) Delta {
	delta, changed := s.projection.Retract(key)
	if changed {
		retractedMetric.Inc()
	}
	return delta
}

func (s *Synchronizer) remove(lg types.Log) Delta {
	delta, changed := s.projection.Remove(lg)
	if changed {
		retractedMetric.Inc()
	}
	return delta
}

// emit reports delta once the initial snapshot was delivered; before that
// the snapshot carries every change.
func (s *Synchronizer) emit(g *generation, delta Delta) {
	if !g.caughtUp || delta.Empty() {
		return
	}
	for i := range delta.Added {
		delta.Added[i].Confirmed = isConfirmed(delta.Added[i].Key, s.head, s.cfg.Confirmations)
	}
	s.presenter.Delta(delta)
}

func (s *Synchronizer) updateStatus(g *generation) {
	st := Status{State: StateSyncing, ChainID: s.chainID}
	switch {
	case g.subErr != nil:
		st.State, st.Err = StateDegraded, g.subErr
	case g.fetchErr != nil:
		st.State, st.Err = StateDegraded, g.fetchErr
	case g.caughtUp && g.subscribed:
		st.State = StateLive
	}
	if g.reported && st.State == g.status.State && errText(st.Err) == errText(g.status.Err) {
		return
	}
	g.status, g.reported = st, true
	s.presenter.Status(st)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Synchronizer) snapshot() Snapshot {
	snap := s.projection.Snapshot(s.head, s.cfg.Confirmations)
	snap.ChainID = s.chainID
	return snap
}

func (s *Synchronizer) publish() {
	snap := s.snapshot()
	participantsMetric.Set(float64(len(snap.Participants)))
	watermarkMetric.Set(float64(snap.Watermark.Block))
	s.mu.Lock()
	s.published = snap
	s.mu.Unlock()
}

// Snapshot returns the last published view. Safe for concurrent use.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.published
	snap.Participants = append([]Entry(nil), snap.Participants...)
	return snap
}

func (s *Synchronizer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.published.Participants)
}

func (s *Synchronizer) Watermark() (types.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published.Watermark, s.published.HasWatermark
}
