package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/logging"
	"github.com/backline-ai/backline/memory"
	"github.com/backline-ai/backline/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns bounds how many runs execute at once across all
	// sessions. Runs beyond the bound queue until a slot frees.
	MaxConcurrentRuns int
	// MaxRounds is the model call budget per run. Zero keeps the default.
	MaxRounds int
	// EventBufferSize sets channel buffering for event delivery.
	EventBufferSize int
	// Sessions persists conversation history and session state.
	Sessions core.SessionStore
	// Memory backs agent memory retrieval (voice samples and the like).
	Memory core.MemoryStore
	// Logger receives runner diagnostics.
	Logger logging.Logger
}

var _ core.Runner = (*Runner)(nil)

// Runner executes agent turns: it serializes runs per session, bounds global
// concurrency, persists every completed event, and forwards the stream to the
// caller. Public methods are safe for concurrent use.
//
// One turn is one call to Run: the user event is appended under the session
// lock, the chosen agent drives its model loop against a fresh session
// snapshot, and every non-partial event it emits is stored before the agent
// is resumed for its next step.
type Runner struct {
	maxRounds       int
	eventBufferSize int

	sessions core.SessionStore
	memory   core.MemoryStore
	logger   logging.Logger

	sem chan struct{}

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	runs  map[string]context.CancelFunc
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 8,
		EventBufferSize:   64,
		Sessions:          session.NewInMemoryStore(),
		Memory:            memory.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 8
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 64
	}

	return &Runner{
		maxRounds:       opts.MaxRounds,
		eventBufferSize: opts.EventBufferSize,
		sessions:        opts.Sessions,
		memory:          opts.Memory,
		logger:          opts.Logger,
		sem:             make(chan struct{}, opts.MaxConcurrentRuns),
		locks:           make(map[string]*sync.Mutex),
		runs:            make(map[string]context.CancelFunc),
	}
}

// Sessions exposes the backing session store.
func (r *Runner) Sessions() core.SessionStore { return r.sessions }

// Run starts one asynchronous turn of ag for the session. It returns the run
// id plus the event and error streams; both channels close when the run
// finishes. Turns on the same session are serialized in arrival order at the
// session lock, so a second Run issued while the first is still working
// queues instead of interleaving.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	ag core.Agent,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	if ag == nil {
		return "", nil, nil, errors.New("runner: agent is nil")
	}
	if sessionID == "" {
		return "", nil, nil, errors.New("runner: session id is empty")
	}

	runID := core.NewID()
	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.runs[runID] = cancel
	r.mu.Unlock()

	rc := core.NewRunContext(runCtx, core.RunContextConfig{
		SessionID:   sessionID,
		RunID:       runID,
		Agent:       core.AgentInfo{Name: ag.Name(), Type: "model"},
		Branch:      ag.Name(),
		UserContent: userContent,
		Budget:      core.NewRunBudget(r.maxRounds),
		Emit:        agentEmit,
		Resume:      resumeCh,
		Sessions:    r.sessions,
		Memory:      r.memory,
		Logger:      r.logger,
	})

	go func() {
		defer func() {
			close(agentEmit)
			r.mu.Lock()
			delete(r.runs, runID)
			r.mu.Unlock()
		}()
		r.execute(rc, ag, errorsCh)
	}()

	go func() {
		// The context is released only after the drain finishes so that a
		// normal completion never races event delivery against Done().
		defer func() {
			close(eventsCh)
			close(errorsCh)
			cancel()
		}()
		r.processEvents(rc, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// Cancel stops a running run. The run emits a final interrupted event before
// its channels close; history written so far is kept.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.runs[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	cancel()
	return nil
}

// execute acquires the session lock and a concurrency slot, appends the user
// event, and drives the agent. Errors that are not cancellation go to errorsCh;
// cancellation produces the interrupted terminal event instead.
func (r *Runner) execute(rc *core.RunContext, ag core.Agent, errorsCh chan<- error) {
	lock := r.sessionLock(rc.SessionID)
	lock.Lock()
	defer lock.Unlock()

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-rc.Done():
		r.emitInterrupted(rc, ag)
		return
	}

	userEvent := core.NewUserContentEvent(rc.RunID, &rc.UserContent)
	userEvent.Branch = rc.Branch
	if err := r.sessions.AppendEvent(rc, rc.SessionID, userEvent); err != nil {
		r.fail(rc, errorsCh, fmt.Errorf("append user event: %w", err))
		return
	}

	// Snapshot after the append so the agent's first round already sees
	// the message it is answering.
	sess, err := r.sessions.Get(rc, rc.SessionID)
	if err != nil {
		r.fail(rc, errorsCh, fmt.Errorf("load session: %w", err))
		return
	}
	rc.Session = sess

	if err := r.runAgent(rc, ag); err != nil {
		if rc.Err() != nil {
			r.logger.Debug("runner.run.interrupted", "run_id", rc.RunID, "session_id", rc.SessionID)
			r.emitInterrupted(rc, ag)
			return
		}
		r.fail(rc, errorsCh, fmt.Errorf("agent execution failed: %w", err))
	}
}

func (r *Runner) runAgent(rc *core.RunContext, ag core.Agent) error {
	if err := ag.Start(rc); err != nil {
		return err
	}
	defer func() {
		if err := ag.Stop(rc); err != nil {
			r.logger.Warn("runner.agent.stop_failed", "agent", ag.Name(), "error", err.Error())
		}
	}()
	return ag.Run(rc)
}

// emitInterrupted appends the terminal event of a cancelled run. Delivery
// goes through the normal pipeline so the event is persisted and forwarded
// like any other.
func (r *Runner) emitInterrupted(rc *core.RunContext, ag core.Agent) {
	ev := core.NewEvent(rc.RunID, ag.Name())
	interrupted := true
	ev.Interrupted = &interrupted
	complete := true
	ev.TurnComplete = &complete
	code := core.ErrorCodeCancelled
	ev.ErrorCode = &code
	msg := "run cancelled"
	ev.ErrorMessage = &msg
	if err := rc.EmitEvent(ev); err != nil {
		r.logger.Warn("runner.interrupt.emit_failed", "run_id", rc.RunID, "error", err.Error())
	}
}

func (r *Runner) fail(rc *core.RunContext, errorsCh chan<- error, err error) {
	select {
	case <-rc.Done():
	case errorsCh <- err:
	}
}

// processEvents drains the agent's emissions: state deltas are applied,
// non-partial events are persisted, everything is forwarded to the caller,
// and the agent is resumed after each persisted event. The loop drains until
// the emit channel closes even when the run context is cancelled, so the
// interrupted terminal event still reaches the log and the caller.
func (r *Runner) processEvents(
	rc *core.RunContext,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	// Persistence must outlive run cancellation: a cancelled run still
	// writes its interruption marker.
	persistCtx := context.WithoutCancel(rc)

	for ev := range agentEmit {
		if len(ev.Actions.StateDelta) > 0 {
			if err := r.sessions.ApplyDelta(persistCtx, rc.SessionID, ev.Actions.StateDelta); err != nil {
				r.fail(rc, errorsCh, fmt.Errorf("apply state delta: %w", err))
				return
			}
		}
		if !ev.IsPartial() {
			if err := r.sessions.AppendEvent(persistCtx, rc.SessionID, ev); err != nil {
				r.fail(rc, errorsCh, fmt.Errorf("append event: %w", err))
				return
			}
		}

		select {
		case eventsCh <- ev:
		case <-rc.Done():
			// The caller may have walked away after cancelling; deliver
			// into the buffer if there is room, drop otherwise.
			select {
			case eventsCh <- ev:
			default:
				r.logger.Debug("runner.event.dropped", "run_id", rc.RunID, "event_id", ev.ID)
			}
		}

		if !ev.IsPartial() {
			select {
			case resumeCh <- struct{}{}:
			default:
			}
		}
	}
}

func (r *Runner) sessionLock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	return lock
}
