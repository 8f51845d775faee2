// Package backline provides a high-level façade over the engine, the domain
// agents and their backing stores: the full back office of a working musician
// (gigs, email, invoices, social posts, contacts) behind one Chat call. Most
// applications interact with this package by:
//  1. Creating a Backline via New() with an LLM provider (optionally
//     overriding the default in-memory stores)
//  2. Seeding demo data for first runs (Seed)
//  3. Sending user messages with Chat (request-response) or ChatStream
//     (event streaming), and surfacing PendingDrafts for approval prompts
//
// The façade delegates routing and execution to engine.Engine while keeping
// setup ergonomics concise. All defaults are safe for local development and
// tests; production deployments typically supply a database path, a
// chromem-backed voice store and a structured logger.
package backline

import (
	"context"
	"fmt"
	"time"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/agents"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/engine"
	"github.com/backline-ai/backline/logging"
	"github.com/backline-ai/backline/memory"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

// Options configures a Backline instance.
type Options struct {
	// DBPath locates the SQLite database holding the back-office tables.
	// Empty keeps everything in memory (store.InMemoryPath).
	DBPath string

	// Store overrides the database entirely. When set, DBPath is ignored and
	// Close leaves the store open for its owner.
	Store *store.Store

	// Voice holds the writing samples the social agent retrieves for style
	// matching. Defaults to the in-memory substring store; production setups
	// pass a chromem-backed store.
	Voice core.MemoryStore

	// Sessions overrides conversation persistence. Defaults to in-memory;
	// see PersistSessions for the SQLite-backed option.
	Sessions core.SessionStore

	// PersistSessions stores conversation history in the SQLite database
	// next to the domain tables, so sessions survive restarts. Ignored when
	// Sessions is set.
	PersistSessions bool

	// Classifier is consulted for messages keyword routing cannot place.
	Classifier router.Classifier

	// Hooks are registered on the engine before the first message.
	Hooks []engine.Hook

	// MaxRounds caps model round-trips per turn. Zero keeps the default.
	MaxRounds int

	// MaxConcurrentRuns bounds simultaneous turns across sessions.
	MaxConcurrentRuns int

	// MaxHistoryMessages bounds the conversation window per agent.
	MaxHistoryMessages int

	// ModelTimeout bounds each model call. Zero disables the bound.
	ModelTimeout time.Duration

	// ToolTimeout bounds each tool call. Zero disables the bound.
	ToolTimeout time.Duration

	// EnableStreaming turns on partial response events for ChatStream.
	EnableStreaming bool

	// Logger receives diagnostics from every layer. Defaults to no-op.
	Logger logging.Logger
}

// Reply is the outcome of one Chat turn.
type Reply struct {
	// RunID identifies the turn, usable with Cancel for streaming callers.
	RunID string

	// Agent names who answered: a domain agent, or "backline" itself when
	// the message could not be routed and a clarification was returned.
	Agent string

	// Text is the final assistant message. Empty when the turn ended
	// without one (cancelled, or aborted on a model error).
	Text string

	// Drafts lists the session's pending approvals after the turn, so the
	// caller can render "approve?" prompts next to the reply.
	Drafts []tool.Draft
}

// Backline aggregates the engine, the shared draft ledger and the backing
// stores behind a conversational API.
type Backline struct {
	engine    *engine.Engine
	store     *store.Store
	voice     core.MemoryStore
	approvals *tool.Approvals
	logger    logging.Logger
	ownsStore bool
}

// New wires the five domain agents to the given LLM and returns a ready
// assistant. Any unset service is initialized with an in-memory
// implementation; Close releases only what New opened.
func New(llm model.Model, optFns ...func(o *Options)) (*Backline, error) {
	if llm == nil {
		return nil, fmt.Errorf("backline: model is required")
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	st := opts.Store
	ownsStore := false
	if st == nil {
		path := opts.DBPath
		if path == "" {
			path = store.InMemoryPath
		}
		var err error
		st, err = store.Open(path, store.WithLogger(opts.Logger))
		if err != nil {
			return nil, fmt.Errorf("backline: open store: %w", err)
		}
		ownsStore = true
	}

	voice := opts.Voice
	if voice == nil {
		voice = memory.NewInMemoryStore()
	}

	sessions := opts.Sessions
	if sessions == nil && opts.PersistSessions {
		sessions = st.Sessions()
	}

	approvals := tool.NewApprovals()
	deps := agents.Deps{Store: st, Voice: voice, Approvals: approvals}

	agentOpts := func(o *agent.ModelAgentOptions) {
		o.EnableStreaming = opts.EnableStreaming
		if opts.MaxHistoryMessages > 0 {
			o.MaxHistoryMessages = opts.MaxHistoryMessages
		}
		if opts.ModelTimeout > 0 {
			o.ModelTimeout = opts.ModelTimeout
		}
		if opts.ToolTimeout > 0 {
			o.ToolTimeout = opts.ToolTimeout
		}
	}

	eng := engine.New(func(o *engine.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.MaxRounds = opts.MaxRounds
		o.Sessions = sessions
		o.Classifier = opts.Classifier
		o.Logger = opts.Logger
	})
	for _, b := range agents.All(llm, deps, agentOpts) {
		if err := eng.Register(b.Agent, b.Descriptor); err != nil {
			if ownsStore {
				_ = st.Close()
			}
			return nil, fmt.Errorf("backline: register %s: %w", b.Descriptor.Name, err)
		}
	}
	for _, h := range opts.Hooks {
		eng.RegisterHook(h)
	}

	return &Backline{
		engine:    eng,
		store:     st,
		voice:     voice,
		approvals: approvals,
		logger:    opts.Logger,
		ownsStore: ownsStore,
	}, nil
}

// Chat sends a user message and blocks until the assistant's turn completes.
// The reply carries the final text, the answering agent and any drafts still
// awaiting approval in the session.
func (b *Backline) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	content := core.Content{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: message}}}
	runID, events, err := b.engine.InvokeSync(ctx, sessionID, content)
	if err != nil {
		return nil, err
	}

	reply := &Reply{RunID: runID}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !ev.IsFinalResponse() {
			continue
		}
		if txt := ev.Text(); txt != "" {
			reply.Text = txt
			reply.Agent = ev.Author
			break
		}
	}
	reply.Drafts = b.approvals.Pending(sessionID)
	return reply, nil
}

// ChatStream sends a user message and returns the live event stream for the
// turn: partial text fragments (when streaming is enabled), tool activity and
// the final reply. The run ID can be passed to Cancel.
func (b *Backline) ChatStream(ctx context.Context, sessionID, message string) (string, <-chan core.Event, <-chan error, error) {
	content := core.Content{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: message}}}
	return b.engine.Invoke(ctx, sessionID, content)
}

// Cancel requests cooperative termination of an in-flight turn. The run ends
// with an interrupted final event; its history up to that point is kept.
func (b *Backline) Cancel(runID string) error {
	return b.engine.Cancel(runID)
}

// PendingDrafts lists the session's drafts awaiting approval, oldest first.
func (b *Backline) PendingDrafts(sessionID string) []tool.Draft {
	return b.approvals.Pending(sessionID)
}

// Session returns a snapshot of the conversation, creating it if absent.
func (b *Backline) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	return b.engine.GetSession(ctx, sessionID)
}

// Agents describes the registered agents in routing priority order, for help
// output.
func (b *Backline) Agents() []router.Descriptor {
	return b.engine.Descriptors()
}

// Seed loads the demo back office on first run: emails, contacts, invoices,
// posts, and the voice samples the social agent writes from. Safe to call
// repeatedly; existing data is left alone.
func (b *Backline) Seed(ctx context.Context) error {
	if err := b.store.Seed(ctx); err != nil {
		return fmt.Errorf("backline: seed store: %w", err)
	}

	samples := store.SeedVoiceSamples()
	if len(samples) == 0 {
		return nil
	}
	// Probing with a seeded sample's own text works for both backends:
	// substring matching finds the exact text, similarity search finds any
	// non-empty collection.
	existing, err := b.voice.Search(ctx, core.VoiceScope, samples[0].Text, 1)
	if err != nil {
		return fmt.Errorf("backline: inspect voice store: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, sample := range samples {
		md := map[string]any{"category": sample.Category}
		if _, err := b.voice.Store(ctx, core.VoiceScope, sample.Text, md); err != nil {
			return fmt.Errorf("backline: seed voice samples: %w", err)
		}
	}
	b.logger.Debug("seeded voice samples", "count", len(samples))
	return nil
}

// Close releases resources New created. Stores supplied by the caller stay
// open.
func (b *Backline) Close() error {
	if b.ownsStore {
		return b.store.Close()
	}
	return nil
}
