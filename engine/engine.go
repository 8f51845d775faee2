package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/logging"
	"github.com/backline-ai/backline/memory"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/runner"
	"github.com/backline-ai/backline/session"
)

// clarificationAuthor names the orchestrator itself on events it emits when no
// specialist agent was selected. Domain agents author events under their own
// names.
const clarificationAuthor = "backline"

var _ core.Engine = (*Engine)(nil)

// Options configures an Engine.
//
// All service dependencies default to in-memory implementations, so a bare
// New() yields a fully working engine for development and tests. Production
// callers typically supply a persistent session store and a real logger.
type Options struct {
	// MaxConcurrentRuns bounds how many agent turns may execute at once
	// across all sessions. Defaults to the runner's bound when <= 0.
	MaxConcurrentRuns int

	// MaxRounds caps model round-trips per turn before the degraded reply.
	// Defaults to core.DefaultMaxRounds when <= 0.
	MaxRounds int

	// EventBufferSize sets the buffer of the per-run event channels.
	EventBufferSize int

	// Sessions persists conversation history and session state. The engine
	// and its runner always share this store. Defaults to in-memory.
	Sessions core.SessionStore

	// Memory backs retrieval for agents that search stored samples.
	// Defaults to in-memory.
	Memory core.MemoryStore

	// Classifier, when set, is consulted for messages keyword routing could
	// not place before giving up with a clarification.
	Classifier router.Classifier

	// Logger receives routing and lifecycle diagnostics. Defaults to no-op.
	Logger logging.Logger
}

// Engine is the orchestration layer of the framework. It owns the registry of
// domain agents, decides which agent handles each user message, and delegates
// turn execution to a Runner.
//
// Responsibilities:
//   - Agent registry: thread-safe registration keyed by routing descriptor;
//     duplicate names fail with *router.DuplicateAgentError and leave the
//     registry unchanged.
//   - Routing: sticky sessions, keyword scoring, priority tie-breaks, and an
//     optional classifier fallback (see router.Router). A successful route
//     binds the agent to the session before the turn starts.
//   - Clarification: when nothing matches, the engine answers itself with a
//     clarification reply instead of failing; the exchange is persisted but
//     never bound to an agent branch.
//   - Hooks: registered hooks fire at routing milestones and may veto the
//     turn by returning an error.
//
// Execution concerns (per-session serialization, the global concurrency
// bound, event persistence, cancellation) live in the runner; the engine only
// decides who runs.
type Engine struct {
	sessions core.SessionStore
	logger   logging.Logger
	router   *router.Router
	runner   core.Runner

	mu     sync.RWMutex
	agents map[string]core.Agent

	hooksMu sync.RWMutex
	hooks   map[HookType][]Hook
}

// New creates an engine ready for agent registration. Option functions are
// applied in order; zero values fall back to working in-memory defaults.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Sessions: session.NewInMemoryStore(),
		Memory:   memory.NewInMemoryStore(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := runner.New(func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.MaxRounds = opts.MaxRounds
		o.EventBufferSize = opts.EventBufferSize
		o.Sessions = opts.Sessions
		o.Memory = opts.Memory
		o.Logger = opts.Logger
	})

	return &Engine{
		sessions: opts.Sessions,
		logger:   opts.Logger,
		router:   router.New(router.WithClassifier(opts.Classifier)),
		runner:   r,
		agents:   make(map[string]core.Agent),
		hooks:    make(map[HookType][]Hook),
	}
}

// Register makes an agent routable under the given descriptor. The descriptor
// name defaults to the agent's own name and its description to the agent's
// description. Registering a second agent under an existing name fails with
// *router.DuplicateAgentError and leaves both registries unchanged.
func (e *Engine) Register(a core.Agent, d router.Descriptor) error {
	if a == nil {
		return fmt.Errorf("cannot register nil agent")
	}
	if d.Name == "" {
		d.Name = a.Name()
	}
	if d.Description == "" {
		d.Description = a.Description()
	}
	if err := e.router.Register(d); err != nil {
		return err
	}
	e.mu.Lock()
	e.agents[d.Name] = a
	e.mu.Unlock()
	return nil
}

// GetAgent retrieves a registered agent by name.
func (e *Engine) GetAgent(name string) (core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// Descriptors returns the routing descriptors in registration order. Useful
// for help output and classifier prompts.
func (e *Engine) Descriptors() []router.Descriptor {
	return e.router.Descriptors()
}

// Sessions exposes the session store shared by the engine and its runner.
func (e *Engine) Sessions() core.SessionStore { return e.sessions }

// Invoke routes userContent to an agent and starts an asynchronous turn.
//
// It returns the run identifier, an ordered event stream (closed on
// completion) and a terminal error channel. The immediate error return covers
// startup failures: empty session ID, hook vetoes, session store errors.
//
// When routing finds no agent the engine does not error. It persists the user
// message, answers with a clarification reply carrying error code
// core.ErrorCodeNoAgent, and returns that single event on the stream. The
// session's active agent binding is left untouched so the next routable
// message starts fresh.
func (e *Engine) Invoke(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	if sessionID == "" {
		return "", nil, nil, fmt.Errorf("session ID must not be empty")
	}

	message := userContent.Text()
	hc := &HookContext{SessionID: sessionID, Message: message}
	if err := e.fire(ctx, HookBeforeRoute, hc); err != nil {
		return "", nil, nil, fmt.Errorf("before-route hook rejected message: %w", err)
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	d, err := e.router.Route(ctx, sess, message)
	if err != nil {
		var noMatch *router.NoMatchError
		if !errors.As(err, &noMatch) {
			return "", nil, nil, err
		}
		if hookErr := e.fire(ctx, HookNoMatch, hc); hookErr != nil {
			return "", nil, nil, fmt.Errorf("no-match hook: %w", hookErr)
		}
		return e.clarify(ctx, sessionID, userContent)
	}

	e.mu.RLock()
	ag, ok := e.agents[d.Name]
	e.mu.RUnlock()
	if !ok {
		return "", nil, nil, fmt.Errorf("agent %s not found", d.Name)
	}

	hc.Agent = d.Name
	if err := e.fire(ctx, HookAfterRoute, hc); err != nil {
		return "", nil, nil, fmt.Errorf("after-route hook rejected route: %w", err)
	}

	// Bind before the turn starts so a message racing in behind this one
	// routes sticky to the same agent.
	delta := map[string]any{core.StateKeyActiveAgent: d.Name}
	if err := e.sessions.ApplyDelta(ctx, sessionID, delta); err != nil {
		return "", nil, nil, fmt.Errorf("failed to bind agent to session: %w", err)
	}
	e.logger.Debug("engine.route", "session_id", sessionID, "agent", d.Name)

	return e.runner.Run(ctx, sessionID, ag, userContent)
}

// InvokeSync executes a full turn and returns all generated events in order.
// It is a convenience wrapper over Invoke for request-response callers that
// do not need streaming. The final event carries the assistant reply; partial
// events are included so callers can inspect the full trace.
func (e *Engine) InvokeSync(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := e.Invoke(ctx, sessionID, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	var terminal error
	for eventsCh != nil || errorsCh != nil {
		select {
		case <-ctx.Done():
			return runID, events, ctx.Err()

		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			events = append(events, ev)

		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			if err != nil && terminal == nil {
				terminal = err
			}
		}
	}
	return runID, events, terminal
}

// Cancel requests cooperative termination of an in-flight run. The cancelled
// run finishes with an interrupted final event; already completed or unknown
// runs return an error.
func (e *Engine) Cancel(runID string) error {
	return e.runner.Cancel(runID)
}

// GetSession returns a point-in-time snapshot of a session, creating it if it
// does not exist yet.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// clarify persists the unroutable user message and a clarification reply,
// then returns the reply as a pre-completed run. Neither event is stamped
// with an agent branch, so the exchange stays out of every agent's history.
func (e *Engine) clarify(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	runID := core.NewID()

	userEvent := core.NewUserContentEvent(runID, &userContent)
	if err := e.sessions.AppendEvent(ctx, sessionID, userEvent); err != nil {
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	reply := core.NewMessageEvent(runID, clarificationAuthor, router.ClarificationReply)
	code := core.ErrorCodeNoAgent
	complete := true
	reply.ErrorCode = &code
	reply.TurnComplete = &complete
	if err := e.sessions.AppendEvent(ctx, sessionID, reply); err != nil {
		return "", nil, nil, fmt.Errorf("failed to append clarification reply: %w", err)
	}
	e.logger.Debug("engine.no_match", "session_id", sessionID)

	eventsCh := make(chan core.Event, 1)
	eventsCh <- reply
	close(eventsCh)
	errorsCh := make(chan error)
	close(errorsCh)
	return runID, eventsCh, errorsCh, nil
}
