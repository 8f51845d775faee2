package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/backline-ai/backline/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
// Previously named ModelInfo; renamed to avoid stutter at call sites.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "local", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows & agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Two modes compose: a FIFO script of turns (Enqueue*) consumed one per
// Generate call, and a prompt map (AddResponse) consulted when the script is
// exhausted. Every request is recorded for later inspection.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	script    []scriptedTurn
	responses map[string]string
	requests  []Request
}

type scriptedTurn struct {
	content core.Content
	err     error
	block   bool // hold until ctx cancellation, then surface ctx.Err()
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueText scripts a plain assistant text turn.
func (m *MockModel) EnqueueText(text string) {
	m.enqueue(scriptedTurn{content: core.Content{
		Role:  core.RoleAssistant,
		Parts: []core.Part{core.TextPart{Text: text}},
	}})
}

// EnqueueToolCalls scripts an assistant turn requesting the given tool calls.
func (m *MockModel) EnqueueToolCalls(calls ...core.FunctionCall) {
	parts := make([]core.Part, 0, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", len(m.script), i)
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: call})
	}
	m.enqueue(scriptedTurn{content: core.Content{Role: core.RoleAssistant, Parts: parts}})
}

// EnqueueError scripts a provider failure for one Generate call.
func (m *MockModel) EnqueueError(err error) {
	m.enqueue(scriptedTurn{err: err})
}

// EnqueueBlocking scripts a turn that never completes on its own; Generate
// waits for context cancellation and reports ctx.Err(). Used to exercise
// timeout and cancellation paths.
func (m *MockModel) EnqueueBlocking() {
	m.enqueue(scriptedTurn{block: true})
}

func (m *MockModel) enqueue(turn scriptedTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, turn)
}

// Requests returns a copy of every request received so far, in order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount reports how many Generate calls have been made.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model; consumes the script first, then falls back to
// the prompt map, emitting optional streaming char chunks then a final
// response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var turn *scriptedTurn
	if len(m.script) > 0 {
		t := m.script[0]
		m.script = m.script[1:]
		turn = &t
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if turn != nil {
			switch {
			case turn.block:
				<-ctx.Done()
				errCh <- ctx.Err()
			case turn.err != nil:
				errCh <- turn.err
			default:
				respCh <- Response{Partial: false, Content: turn.content, FinishReason: finishReason(turn.content)}
			}
			return
		}
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		var inputText string
		for _, p := range last.Parts {
			if tp, ok := p.(core.TextPart); ok {
				inputText += tp.Text
			}
		}
		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  core.RoleAssistant,
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}
		respCh <- Response{
			Partial: false,
			Content: core.Content{
				Role:  core.RoleAssistant,
				Parts: []core.Part{core.TextPart{Text: full}},
			},
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

func finishReason(c core.Content) string {
	for _, p := range c.Parts {
		if _, ok := p.(core.FunctionCallPart); ok {
			return "tool_calls"
		}
	}
	return "stop"
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
