// Backline - back office assistant for working musicians
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/backline-ai/backline"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/engine"
	"github.com/backline-ai/backline/internal/config"
	"github.com/backline-ai/backline/logging"
	"github.com/backline-ai/backline/memory/chromem"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/model/anthropic"
	"github.com/backline-ai/backline/model/openai"
	"github.com/backline-ai/backline/store"
	"github.com/joho/godotenv"
)

// defaultSessionID keeps one persistent conversation across restarts; /new
// switches to a throwaway session.
const defaultSessionID = "cli"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	logger := logging.NewSlogAdapter(slog.Default())

	var llm model.Model
	switch cfg.Provider {
	case config.ProviderAnthropic:
		llm = anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
		})
	case config.ProviderOpenAI:
		// The OpenAI client reads OPENAI_API_KEY from the environment.
		llm = openai.NewModel()
	}

	if cfg.DBPath != store.InMemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			slog.Error("Failed to create data directory", "error", err)
			os.Exit(1)
		}
	}

	var voice core.MemoryStore
	if cfg.VoiceDBPath != "" {
		vs, err := chromem.New(chromem.WithPath(cfg.VoiceDBPath))
		if err != nil {
			slog.Error("Failed to open voice store", "error", err)
			os.Exit(1)
		}
		voice = vs
	}

	b, err := backline.New(llm, func(o *backline.Options) {
		o.DBPath = cfg.DBPath
		o.Voice = voice
		o.PersistSessions = true
		o.MaxRounds = cfg.MaxRounds
		o.ModelTimeout = cfg.ModelTimeout
		o.ToolTimeout = cfg.ToolTimeout
		o.Logger = logger
		o.Hooks = []engine.Hook{engine.NewLoggingHook(engine.HookAfterRoute, logger)}
	})
	if err != nil {
		slog.Error("Failed to start assistant", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			slog.Error("Failed to close assistant", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Seed {
		if err := b.Seed(ctx); err != nil {
			slog.Error("Failed to seed demo data", "error", err)
			os.Exit(1)
		}
		slog.Info("Demo data seeded")
	}

	slog.Info("Assistant ready", "provider", cfg.Provider, "db", cfg.DBPath)

	done := make(chan struct{})
	go func() {
		defer close(done)
		repl(ctx, b)
	}()

	select {
	case <-ctx.Done():
		fmt.Println()
		slog.Info("Shutting down")
	case <-done:
	}
}

// repl reads user messages from stdin and prints each agent reply until the
// input ends, /quit is entered or the context is cancelled.
func repl(ctx context.Context, b *backline.Backline) {
	sessionID := defaultSessionID

	fmt.Println("Backline, the back office for working musicians.")
	fmt.Println("Ask about gigs, email, invoices, posts or contacts. /help lists commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := command(ctx, b, &sessionID, line); quit {
				return
			}
			continue
		}

		reply, err := b.Chat(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Printf("error: %v\n", err)
			continue
		}
		if reply.Text != "" {
			fmt.Printf("%s> %s\n", reply.Agent, reply.Text)
		}
		for _, d := range reply.Drafts {
			fmt.Printf("  [%s draft %s] %s\n", d.Kind, d.ID, d.Summary)
		}
		if len(reply.Drafts) > 0 {
			fmt.Println(`  approve by answering, e.g. "send it" or "post it"`)
		}
	}
}

// command handles a slash command and reports whether the REPL should exit.
func command(ctx context.Context, b *backline.Backline, sessionID *string, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println("  /agents   list the assistants and what they handle")
		fmt.Println("  /drafts   show drafts waiting for approval")
		fmt.Println("  /history  replay the session transcript")
		fmt.Println("  /new      start a fresh session")
		fmt.Println("  /quit     exit")
	case "/agents":
		for _, d := range b.Agents() {
			fmt.Printf("  %-10s %s\n", d.Name, d.Description)
		}
	case "/drafts":
		drafts := b.PendingDrafts(*sessionID)
		if len(drafts) == 0 {
			fmt.Println("  no drafts pending approval")
			break
		}
		for _, d := range drafts {
			fmt.Printf("  [%s draft %s] %s\n", d.Kind, d.ID, d.Summary)
		}
	case "/history":
		sess, err := b.Session(ctx, *sessionID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, ev := range sess.Events {
			if text := ev.Text(); text != "" {
				fmt.Printf("  %s> %s\n", ev.Author, text)
				continue
			}
			for _, call := range ev.GetFunctionCalls() {
				fmt.Printf("  %s> [tool %s]\n", ev.Author, call.Name)
			}
		}
	case "/new":
		*sessionID = core.NewID()
		fmt.Printf("  started session %s\n", *sessionID)
	default:
		fmt.Printf("  unknown command %q, try /help\n", strings.Fields(line)[0])
	}
	return false
}
