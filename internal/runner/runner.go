// Package runner orchestrates a simulation run.
//
// A Runner moves through Idle, WaitingForActors, Running, Draining and
// Stopped. While running it pairs the next actor with the next workflow,
// shapes the pairing stream with the configured ramp-up and throttle, and
// executes pairings on a fixed pool of workers. Pairing failures are
// reported as events and never end the run; only a missing actor quorum,
// an explicit stop or an unrecoverable error do.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/rhino/internal/actor"
	"github.com/wesleyorama2/rhino/internal/dsl"
	"github.com/wesleyorama2/rhino/internal/events"
	"github.com/wesleyorama2/rhino/internal/materialize"
	"github.com/wesleyorama2/rhino/internal/metrics"
	"github.com/wesleyorama2/rhino/internal/rate"
	"github.com/wesleyorama2/rhino/internal/sequence"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// Result summarises a finished run.
type Result struct {
	RunID string `json:"runId"`
	Name  string `json:"name"`

	Executions int64 `json:"executions"`
	Completed  int64 `json:"completed"`
	Terminated int64 `json:"terminated"`
	Dropped    int64 `json:"dropped"`
	Failed     int64 `json:"failed"`
	Abandoned  int64 `json:"abandoned"`

	EventsDropped int64 `json:"eventsDropped"`

	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Reason   Reason        `json:"reason"`
}

// Runner executes workflows for a pool of actors.
type Runner struct {
	cfg       Config
	workflows []*dsl.Node
	pool      actor.Pool

	transport  transport.Transport
	dispatcher events.Dispatcher
	sinks      []events.Sink
	busOpts    []events.BusOption
	collector  *metrics.Collector
	log        zerolog.Logger
	runID      string

	state         atomic.Int32
	stopOnce      sync.Once
	stopCh        chan struct{}
	stopRequested atomic.Bool

	mu       sync.Mutex
	sessions []*session.Session

	completed  atomic.Int64
	terminated atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
	abandoned  atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithTransport sets the transport HTTP steps use. The default is a
// transport.Client with default settings.
func WithTransport(t transport.Transport) Option {
	return func(r *Runner) {
		r.transport = t
	}
}

// WithDispatcher sends events to d instead of a bus owned by the runner.
// Sinks and the collector are then the caller's business.
func WithDispatcher(d events.Dispatcher) Option {
	return func(r *Runner) {
		r.dispatcher = d
	}
}

// WithSinks adds consumers to the runner's event bus.
func WithSinks(sinks ...events.Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithBusOptions configures the runner's event bus.
func WithBusOptions(opts ...events.BusOption) Option {
	return func(r *Runner) {
		r.busOpts = append(r.busOpts, opts...)
	}
}

// WithCollector feeds events to c and keeps its phase in step with the run.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) {
		r.collector = c
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// New validates cfg and creates a Runner for workflows. Workflows are
// paired with actors in order, cycling through both lists.
func New(cfg Config, workflows []*dsl.Node, pool actor.Pool, opts ...Option) (*Runner, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(workflows) == 0 {
		return nil, simerr.Invalid("simulation", "workflows", "at least one workflow is required")
	}
	for i, w := range workflows {
		if w == nil {
			return nil, simerr.Invalid("simulation", "workflows", fmt.Sprintf("workflow %d is nil", i))
		}
	}
	if pool == nil {
		return nil, simerr.Invalid("simulation", "actors", "an actor pool is required")
	}

	r := &Runner{
		cfg:       cfg,
		workflows: workflows,
		pool:      pool,
		log:       zerolog.Nop(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	if r.transport == nil {
		r.transport = transport.NewClient(transport.DefaultClientConfig())
	}
	r.log = r.log.With().Str("run", r.runID).Str("simulation", cfg.Name).Logger()
	return r, nil
}

// RunID returns the run identifier stamped on events.
func (r *Runner) RunID() string { return r.runID }

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

// Sessions returns the prepared session of every actor in the run.
func (r *Runner) Sessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*session.Session(nil), r.sessions...)
}

// Stop asks the run to drain and stop. It is safe to call any number of
// times and from any goroutine.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopRequested.Store(true)
		close(r.stopCh)
	})
}

func (r *Runner) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		r.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state change")
	}
}

func (r *Runner) setPhase(p metrics.Phase) {
	if r.collector != nil {
		r.collector.SetPhase(p)
	}
}

type flow struct {
	name string
	step materialize.Step
}

type pairing struct {
	seq     int64
	session *session.Session
	flow    flow
}

// Run executes the simulation and blocks until it has stopped. A Runner
// runs once.
//
// The returned error is non-nil only when the run could not do its work:
// not enough actors, a failing prepare hook or an unrecoverable pairing
// error. Pairing failures are counted in the Result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateWaitingForActors)) {
		return nil, fmt.Errorf("runner %s already started", r.runID)
	}
	r.log.Debug().Stringer("to", StateWaitingForActors).Msg("state change")

	res := &Result{RunID: r.runID, Name: r.cfg.Name, Start: time.Now()}
	r.setPhase(metrics.PhaseInit)

	dispatcher, closeBus := r.eventDispatcher(res)
	defer func() {
		closeBus()
		r.setPhase(metrics.PhaseDone)
	}()

	if err := r.waitForActors(ctx); err != nil {
		r.setState(StateStopped)
		res.Reason = r.stopReason(ctx, ReasonInsufficientActors)
		r.finish(res)
		if r.stopRequested.Load() || ctx.Err() != nil {
			return res, nil
		}
		return res, err
	}

	if err := r.prepare(ctx); err != nil {
		r.setState(StateDraining)
		r.cleanUp(ctx)
		r.setState(StateStopped)
		res.Reason = ReasonFatal
		r.finish(res)
		return res, err
	}

	actors, err := sequence.New(r.Sessions())
	if err != nil {
		r.setState(StateStopped)
		res.Reason = ReasonFatal
		r.finish(res)
		return res, err
	}
	flows, err := sequence.New(r.flows(dispatcher))
	if err != nil {
		r.setState(StateStopped)
		res.Reason = ReasonFatal
		r.finish(res)
		return res, err
	}

	runErr := r.run(ctx, actors, flows, dispatcher, res)

	r.cleanUp(ctx)
	actors.Stop()
	flows.Stop()
	r.setState(StateStopped)
	r.finish(res)

	r.log.Info().
		Str("reason", string(res.Reason)).
		Int64("executions", res.Executions).
		Int64("completed", res.Completed).
		Int64("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("simulation stopped")
	return res, runErr
}

// eventDispatcher returns the dispatcher for the run and a function
// releasing it. Closing an owned bus flushes pending events to its sinks.
func (r *Runner) eventDispatcher(res *Result) (events.Dispatcher, func()) {
	if r.dispatcher != nil {
		return r.dispatcher, func() {}
	}

	sinks := append([]events.Sink(nil), r.sinks...)
	if r.collector != nil {
		sinks = append(sinks, r.collector)
	}
	bus := events.NewBus(r.cfg.EventBuffer, sinks, r.busOpts...)
	return bus, func() {
		bus.Close()
		res.EventsDropped = bus.Dropped()
	}
}

// waitForActors polls the pool until it can supply the configured number of
// actors.
func (r *Runner) waitForActors(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ActorPollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if r.pool.Has(r.cfg.Actors) {
			return nil
		}
		if attempt >= r.cfg.ActorPollAttempts {
			err := &simerr.InsufficientActorsError{Required: r.cfg.Actors, Attempts: attempt}
			r.log.Error().Err(err).Msg("actor pool not ready")
			return err
		}

		r.log.Debug().Int("attempt", attempt).Int("required", r.cfg.Actors).Msg("waiting for actors")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return errors.New("stopped while waiting for actors")
		case <-ticker.C:
		}
	}
}

// prepare takes the run's actors from the pool and runs the prepare hook
// against each actor's session.
func (r *Runner) prepare(ctx context.Context) error {
	registry := session.NewRegistry()
	sessions := make([]*session.Session, 0, r.cfg.Actors)

	for i := 0; i < r.cfg.Actors; i++ {
		a, err := r.pool.Take()
		if err != nil {
			return fmt.Errorf("take actor %d: %w", i, err)
		}
		sessions = append(sessions, session.New(a, registry))
	}

	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()

	if r.cfg.Prepare == nil {
		return nil
	}
	for _, s := range sessions {
		if err := r.cfg.Prepare(ctx, s); err != nil {
			return fmt.Errorf("prepare actor %s: %w", s.Actor().ID, err)
		}
	}
	return nil
}

// cleanUp runs the cleanup hook for every prepared session. It runs even
// when ctx is already cancelled.
func (r *Runner) cleanUp(ctx context.Context) {
	if r.cfg.CleanUp == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range r.Sessions() {
		if err := r.cfg.CleanUp(ctx, s); err != nil {
			r.log.Warn().Err(err).Str("actor", s.Actor().ID).Msg("cleanup failed")
		}
	}
}

func (r *Runner) flows(dispatcher events.Dispatcher) []flow {
	m := materialize.New(r.transport,
		materialize.WithDispatcher(dispatcher),
		materialize.WithLogger(r.log),
		materialize.WithRunID(r.runID),
	)

	out := make([]flow, len(r.workflows))
	for i, w := range r.workflows {
		out[i] = flow{name: w.Name(), step: m.Materialize(w)}
	}
	return out
}

// run drives the Running and Draining states and fills the counters and
// reason of res.
func (r *Runner) run(ctx context.Context, actors *sequence.Cyclic[*session.Session], flows *sequence.Cyclic[flow], dispatcher events.Dispatcher, res *Result) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if r.cfg.Duration > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, r.cfg.Duration)
		defer cancelTimeout()
	}

	// In-flight pairings outlive the pairing stream until drained.
	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()

	go func() {
		select {
		case <-r.stopCh:
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)

	feed := make(chan pairing)
	g.Go(func() error {
		defer close(feed)
		return r.feed(gctx, actors, flows, feed)
	})
	shaped := rate.Shape(gctx, r.cfg.Ramp, r.cfg.Throttle, feed)

	for i := 0; i < r.cfg.Parallelism; i++ {
		g.Go(func() error {
			for p := range shaped {
				if gctx.Err() != nil {
					return nil
				}
				if err := r.execute(execCtx, dispatcher, p); err != nil {
					return err
				}
			}
			return nil
		})
	}

	r.setState(StateRunning)
	stopPhases := r.startPhases()
	r.log.Info().
		Int("actors", r.cfg.Actors).
		Int("parallelism", r.cfg.Parallelism).
		Dur("duration", r.cfg.Duration).
		Int64("maxExecutions", r.cfg.MaxExecutions).
		Msg("simulation running")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
		stopPhases()
		r.setState(StateDraining)
		r.setPhase(metrics.PhaseDraining)
	case <-gctx.Done():
		stopPhases()
		r.setState(StateDraining)
		r.setPhase(metrics.PhaseDraining)
		err = r.drain(cancelExec, done)
	}

	switch {
	case err != nil:
		res.Reason = ReasonFatal
		r.log.Error().Err(err).Msg("simulation aborted")
	case r.stopRequested.Load():
		res.Reason = ReasonStopped
	case ctx.Err() != nil:
		res.Reason = ReasonCancelled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Reason = ReasonDuration
	default:
		res.Reason = ReasonCompleted
	}
	return err
}

// feed zips the actor and workflow sequences into out until ctx is done or
// the execution bound is reached.
func (r *Runner) feed(ctx context.Context, actors *sequence.Cyclic[*session.Session], flows *sequence.Cyclic[flow], out chan<- pairing) error {
	for n := int64(1); r.cfg.MaxExecutions == 0 || n <= r.cfg.MaxExecutions; n++ {
		s, err := actors.Next()
		if err != nil {
			return err
		}
		f, err := flows.Next()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case out <- pairing{seq: n, session: s, flow: f}:
		}
	}
	return nil
}

// drain waits for in-flight pairings per the drain mode. done yields the
// worker group's result.
func (r *Runner) drain(cancel context.CancelFunc, done <-chan error) error {
	if r.cfg.Drain == DrainAbandon {
		cancel()
		return <-done
	}
	if r.cfg.GracefulStop <= 0 {
		return <-done
	}

	timer := time.NewTimer(r.cfg.GracefulStop)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.log.Warn().Dur("gracefulStop", r.cfg.GracefulStop).Msg("graceful stop timed out, abandoning in-flight pairings")
		cancel()
		return <-done
	}
}

// execute runs one pairing on a copy of the actor's prepared session and
// reports it as a workflow event. Only fatal errors are returned.
func (r *Runner) execute(ctx context.Context, dispatcher events.Dispatcher, p pairing) error {
	s := p.session.Fork()
	base := events.Event{
		Kind:     events.KindWorkflow,
		RunID:    r.runID,
		Scenario: p.flow.name,
		ActorID:  s.Actor().ID,
	}

	start := time.Now()
	startEvent := base
	startEvent.Type = events.TypeStart
	startEvent.Start = start
	dispatcher.Dispatch(startEvent)

	_, err := p.flow.step(ctx, s)

	base.Status = r.classify(ctx, err)
	base.Failed = err != nil
	_, end := events.Pair(base, start, time.Now())
	dispatcher.Dispatch(end)

	log := r.log.With().Str("workflow", p.flow.name).Str("actor", s.Actor().ID).Int64("pairing", p.seq).Logger()
	switch base.Status {
	case events.StatusCompleted:
		log.Debug().Dur("elapsed", end.Elapsed).Msg("pairing completed")
	case events.StatusTerminated:
		log.Info().Err(err).Msg("pairing terminated")
	case events.StatusAbandoned:
		log.Debug().Msg("pairing abandoned")
	default:
		log.Warn().Err(err).Str("status", base.Status).Msg("pairing failed")
	}

	if simerr.IsFatal(err) {
		return err
	}
	return nil
}

func (r *Runner) classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		r.completed.Add(1)
		return events.StatusCompleted
	case simerr.IsTermination(err):
		r.terminated.Add(1)
		return events.StatusTerminated
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		r.abandoned.Add(1)
		return events.StatusAbandoned
	case simerr.IsDropped(err):
		r.dropped.Add(1)
		return events.StatusDropped
	default:
		r.failed.Add(1)
		return events.StatusFailed
	}
}

// startPhases moves the collector to ramp-up, then steady once the ramp
// is over. The returned function cancels the pending switch.
func (r *Runner) startPhases() func() {
	if r.collector == nil {
		return func() {}
	}
	if r.cfg.Ramp == nil {
		r.setPhase(metrics.PhaseSteady)
		return func() {}
	}

	r.setPhase(metrics.PhaseRampUp)
	timer := time.AfterFunc(r.cfg.Ramp.Duration, func() {
		if r.collector.Phase() == metrics.PhaseRampUp {
			r.setPhase(metrics.PhaseSteady)
		}
	})
	return func() { timer.Stop() }
}

func (r *Runner) stopReason(ctx context.Context, fallback Reason) Reason {
	switch {
	case r.stopRequested.Load():
		return ReasonStopped
	case ctx.Err() != nil:
		return ReasonCancelled
	default:
		return fallback
	}
}

func (r *Runner) finish(res *Result) {
	res.End = time.Now()
	res.Duration = res.End.Sub(res.Start)
	res.Completed = r.completed.Load()
	res.Terminated = r.terminated.Load()
	res.Dropped = r.dropped.Load()
	res.Failed = r.failed.Load()
	res.Abandoned = r.abandoned.Load()
	res.Executions = res.Completed + res.Terminated + res.Dropped + res.Failed + res.Abandoned
}
