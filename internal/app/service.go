// Package service runs the club polling loops: it owns the committed state,
// serializes every read-diff-write cycle and hands committed events to delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/clubwatch/internal/domain/milestone"
	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/internal/domain/roster"
	"github.com/okian/clubwatch/internal/domain/season"
	"github.com/okian/clubwatch/pkg/logger"
	"github.com/okian/clubwatch/pkg/metrics"
)

// Loop names used in logs, metrics and stats.
const (
	LoopRoster = "roster"
	LoopStats  = "stats"
)

// Default scheduling configuration.
const (
	DefaultRosterInterval = 180 * time.Second
	DefaultStatsInterval  = 600 * time.Second
	DefaultDrainTimeout   = 10 * time.Second
)

// Fetcher reads club data from upstream.
type Fetcher interface {
	FetchRoster(ctx context.Context, clubTag string) (model.RosterSnapshot, error)
	FetchMemberStats(ctx context.Context, id string) (model.MemberStatSnapshot, error)
	FetchGlobalLeaderValue(ctx context.Context) (int, error)
}

// Store persists the state aggregate atomically.
type Store interface {
	Load(ctx context.Context) (*model.State, error)
	Save(ctx context.Context, st *model.State) error
}

// Emitter receives events after the state that produced them was committed.
type Emitter interface {
	Emit(ctx context.Context, events []model.Event) error
}

// Runner is a delivery pool that drains its queue until closed.
type Runner interface {
	Run(ctx context.Context) error
}

// Queue is the delivery queue as seen by the service.
type Queue interface {
	Len() int
	Close() error
}

// CycleReport summarizes the last finished cycle of one loop.
type CycleReport struct {
	Outcome  string        `json:"outcome"`
	Events   int           `json:"events"`
	Failed   int           `json:"failed,omitempty"`
	Reset    bool          `json:"reset,omitempty"`
	Error    string        `json:"error,omitempty"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`
}

// Cycle outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Service owns the committed state and the two polling loops.
type Service struct {
	clubTag string
	fetcher Fetcher
	store   Store
	emitter Emitter

	engine   *milestone.Engine
	detector *season.Detector

	rosterInterval time.Duration
	statsInterval  time.Duration

	pool         Runner
	queue        Queue
	drainTimeout time.Duration

	// stateMu is held for one whole cycle: load, fetch, diff, save, swap.
	// The committed state is never mutated in place, so readers load it
	// without taking stateMu.
	stateMu   sync.Mutex
	committed atomic.Pointer[model.State]

	// seeded is signalled when a roster cycle first seeds the roster, so a
	// stats cycle that skipped for lack of a roster does not wait a full interval.
	seeded chan struct{}

	mu      sync.RWMutex
	started bool
	reports map[string]CycleReport

	logger logger.Logger
}

// New constructs a Service for clubTag.
func New(clubTag string, fetcher Fetcher, store Store, emitter Emitter, opts ...Option) *Service {
	s := &Service{
		clubTag:        model.NormalizeTag(clubTag),
		fetcher:        fetcher,
		store:          store,
		emitter:        emitter,
		rosterInterval: DefaultRosterInterval,
		statsInterval:  DefaultStatsInterval,
		drainTimeout:   DefaultDrainTimeout,
		reports:        make(map[string]CycleReport, 2),
		seeded:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.committed.Store(model.NewState())
	if s.engine == nil {
		s.engine = milestone.NewEngine()
	}
	if s.detector == nil {
		s.detector = season.NewDetector()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start loads the persisted state. An unreadable state is replaced by an
// empty one with a warning; the first cycles then reseed it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	st, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordStateLoadError()
		s.logger.Warn(ctx, "state unreadable, starting from empty state",
			logger.Error(err),
			logger.Bool("corrupt", errors.Is(err, model.ErrStateCorrupt)),
		)
		st = model.NewState()
	}
	s.stateMu.Lock()
	s.committed.Store(st.Normalize())
	s.publishGauges(st)
	s.stateMu.Unlock()

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.String("club", s.clubTag),
		logger.Int("roster", len(st.Roster)),
		logger.Bool("seeded", st.RosterSeeded),
		logger.Duration("rosterInterval", s.rosterInterval),
		logger.Duration("statsInterval", s.statsInterval),
	)
	return nil
}

// Run starts the service, runs both pollers and the delivery pool, and blocks
// until ctx is cancelled. On shutdown the pollers stop first, then the queue
// is closed and the pool drains it for at most the drain timeout.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	deliverCtx, cancelDeliver := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDeliver()
	var delivery errgroup.Group
	if s.pool != nil {
		delivery.Go(func() error { return s.pool.Run(deliverCtx) })
	}

	pollers, pctx := errgroup.WithContext(ctx)
	pollers.Go(func() error {
		return NewPoller(LoopRoster, s.rosterInterval, s.RunRosterCycle, WithPollerLogger(s.logger.Named("roster-poller"))).Run(pctx)
	})
	pollers.Go(func() error {
		return NewPoller(LoopStats, s.statsInterval, s.RunStatsCycle,
			WithPollerLogger(s.logger.Named("stats-poller")),
			WithTrigger(s.seeded),
		).Run(pctx)
	})
	pollErr := pollers.Wait()

	stopCtx := context.WithoutCancel(ctx)
	s.logger.Info(stopCtx, "pollers stopped, draining delivery queue")
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn(stopCtx, "closing delivery queue", logger.Error(err))
		}
	}

	drained := make(chan error, 1)
	go func() { drained <- delivery.Wait() }()
	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	var deliverErr error
	select {
	case deliverErr = <-drained:
	case <-timer.C:
		s.logger.Warn(stopCtx, "drain timeout reached, abandoning queued events", logger.Duration("timeout", s.drainTimeout))
		cancelDeliver()
		deliverErr = <-drained
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.logger.Info(stopCtx, "service stopped")
	return errors.Join(pollErr, deliverErr)
}

// RunRosterCycle fetches the roster, diffs it against the committed one,
// prunes watermark rows of departed members and commits.
func (s *Service) RunRosterCycle(ctx context.Context) error {
	start := time.Now()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	snap, err := s.fetcher.FetchRoster(ctx, s.clubTag)
	if err == nil && len(snap.Members) == 0 {
		// Never read as "everyone left": that would drop every watermark.
		err = &model.FetchError{Target: "roster", Err: model.ErrEmptyRoster}
	}
	if err != nil {
		metrics.RecordFetchFailure("roster")
		return s.finish(LoopRoster, start, CycleReport{Outcome: OutcomeFailed}, fmt.Errorf("roster cycle: %w", err))
	}

	next := s.committed.Load().Clone()
	seeding := !next.RosterSeeded
	diff, events := roster.Apply(next, snap)
	pruned := s.engine.Prune(next, snap.IDs())

	if err := s.commit(ctx, next); err != nil {
		return s.finish(LoopRoster, start, CycleReport{Outcome: OutcomeFailed}, fmt.Errorf("roster cycle: %w", err))
	}
	if pruned > 0 {
		metrics.RecordPruned(pruned)
	}
	s.logger.Debug(ctx, "roster cycle committed",
		logger.Bool("seeding", seeding),
		logger.Int("members", len(snap.Members)),
		logger.Int("joined", len(diff.Joined)),
		logger.Int("left", len(diff.Left)),
		logger.Int("pruned", pruned),
	)
	if seeding {
		select {
		case s.seeded <- struct{}{}:
		default:
		}
	}
	s.emit(ctx, events)
	return s.finish(LoopRoster, start, CycleReport{Outcome: OutcomeOK, Events: len(events)}, nil)
}

// RunStatsCycle observes the global leader value, fetches every roster
// member's statistics and applies them to the milestone engine. Members whose
// fetch fails are skipped; the rest of the batch is committed.
func (s *Service) RunStatsCycle(ctx context.Context) error {
	start := time.Now()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.committed.Load().RosterSeeded {
		s.logger.Debug(ctx, "stats cycle skipped, roster not seeded yet")
		return s.finish(LoopStats, start, CycleReport{Outcome: OutcomeSkipped}, nil)
	}
	// This cycle already sees the seeded roster.
	select {
	case <-s.seeded:
	default:
	}

	next := s.committed.Load().Clone()

	isReset := false
	leader, err := s.fetcher.FetchGlobalLeaderValue(ctx)
	switch {
	case err != nil:
		metrics.RecordFetchFailure("leader")
		s.logger.Warn(ctx, "global leader fetch failed, skipping reset detection", logger.Error(err))
	default:
		obs := s.detector.Observe(next.GlobalLeader, leader)
		if obs.IsReset {
			isReset = true
			metrics.RecordSeasonReset()
			s.logger.Warn(ctx, "season reset detected",
				logger.Int("watermark", next.GlobalLeader),
				logger.Int("current", leader),
			)
			s.engine.ResetSeason(next)
		}
		next.GlobalLeader = obs.Watermark
	}

	ids := model.SortedIDs(next.Roster)
	var (
		events []model.Event
		failed []string
	)
	for _, id := range ids {
		snap, err := s.fetcher.FetchMemberStats(ctx, id)
		if err != nil {
			metrics.RecordFetchFailure("member")
			s.logger.Warn(ctx, "member stats fetch failed, skipping", logger.String("member", id), logger.Error(err))
			failed = append(failed, id)
			continue
		}
		if snap.DisplayName == "" {
			snap.DisplayName = next.Roster[id].DisplayName
		}
		events = append(events, s.engine.Update(next, snap, isReset)...)
	}

	if err := s.commit(ctx, next); err != nil {
		return s.finish(LoopStats, start, CycleReport{Outcome: OutcomeFailed, Reset: isReset}, fmt.Errorf("stats cycle: %w", err))
	}
	s.emit(ctx, events)

	report := CycleReport{Outcome: OutcomeOK, Events: len(events), Failed: len(failed), Reset: isReset}
	if len(failed) > 0 {
		report.Outcome = OutcomePartial
		return s.finish(LoopStats, start, report, &model.PartialBatchError{Failed: failed, Total: len(ids)})
	}
	return s.finish(LoopStats, start, report, nil)
}

// commit persists next and, only on success, makes it the committed state.
// Must be called with stateMu held.
func (s *Service) commit(ctx context.Context, next *model.State) error {
	saveStart := time.Now()
	err := s.store.Save(context.WithoutCancel(ctx), next)
	metrics.RecordStateSave(err == nil, msSince(saveStart))
	if err != nil {
		s.logger.Error(ctx, "state save failed, discarding cycle", logger.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	s.committed.Store(next)
	s.publishGauges(next)
	return nil
}

func (s *Service) emit(ctx context.Context, events []model.Event) {
	if len(events) == 0 || s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(context.WithoutCancel(ctx), events); err != nil {
		s.logger.Error(ctx, "emitting committed events", logger.Int("events", len(events)), logger.Error(err))
	}
}

func (s *Service) finish(loop string, start time.Time, report CycleReport, err error) error {
	report.Finished = time.Now()
	report.Duration = report.Finished.Sub(start)
	if err != nil {
		report.Error = err.Error()
	}
	metrics.RecordCycle(loop, report.Outcome, msSince(start))

	s.mu.Lock()
	s.reports[loop] = report
	s.mu.Unlock()
	return err
}

func (s *Service) publishGauges(st *model.State) {
	metrics.UpdateRosterSize(len(st.Roster))
	metrics.UpdateTrackedMembers(st.TrackedMembers())
	metrics.UpdateGlobalLeader(st.GlobalLeader)
}

// Snapshot returns a copy of the committed state. It does not wait for an
// in-flight cycle.
func (s *Service) Snapshot() *model.State {
	return s.committed.Load().Clone()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	reports := make(map[string]CycleReport, len(s.reports))
	for k, v := range s.reports {
		reports[k] = v
	}
	started := s.started
	s.mu.RUnlock()

	st := s.Snapshot()
	stats := map[string]interface{}{
		"started":        started,
		"club":           s.clubTag,
		"rosterSeeded":   st.RosterSeeded,
		"rosterSize":     len(st.Roster),
		"trackedMembers": st.TrackedMembers(),
		"globalLeader":   st.GlobalLeader,
		"cycles":         reports,
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len()
	}
	return stats
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
