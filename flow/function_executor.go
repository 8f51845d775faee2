package flow

import (
	"context"
	"sync"
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/tool"
)

// FunctionExecutor executes a batch of function/tool calls possibly in parallel and emits
// function response events through the provided emit callback. Implementations must:
//   - Respect run context cancellation without starting new calls
//   - Never panic (the registry recovers handler panics into failure responses)
//   - Emit exactly one FunctionResponse event per incoming FunctionCall,
//     in the order the calls were requested
//   - Apply ToolContext accumulated actions to emitted events
//
// The emit callback is responsible for persistence synchronization (resume handling).
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, registry *tool.Registry, fnCalls []core.FunctionCall, emit func(core.Event) error)
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(fnCalls))
	LogStartEvents bool // log a start line per function
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry *tool.Registry,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) {
	n := len(fnCalls)
	if n == 0 {
		return
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		ev := e.runCall(runCtx, agent, registry, fnCalls[0])
		if err := emit(ev); err != nil {
			runCtx.LogError("agent.function.emit.error", "function", fnCalls[0].Name, "error", err.Error())
		}
		return
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.Event, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		// Past the cancellation point no new calls start; the batch still
		// yields one response per call so the conversation stays well formed.
		if runCtx.Err() != nil {
			results[i] = e.cancelledEvent(runCtx, agent, fnCalls[i])
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.runCall(runCtx, agent, registry, fc)
		}(i, fnCalls[i])
	}

	wg.Wait()

	for i := 0; i < n; i++ {
		if err := emit(results[i]); err != nil {
			runCtx.LogError("agent.function.emit.error", "function", fnCalls[i].Name, "error", err.Error())
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
}

// runCall executes one function call through the registry under the agent's
// tool timeout and converts the response into an event.
func (e *parallelFunctionExecutor) runCall(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry *tool.Registry,
	fc core.FunctionCall,
) core.Event {
	if runCtx.Err() != nil {
		return e.cancelledEvent(runCtx, agent, fc)
	}
	if registry == nil {
		resp := core.FunctionResponse{
			ID:    fc.ID,
			Name:  fc.Name,
			Error: tool.NewToolError(fc.Name, "agent has no tools registered", tool.CodeNotFound).Error(),
		}
		return core.NewFunctionResponseEvent(runCtx.RunID, agent.GetName(), resp)
	}

	callCtx := context.Context(runCtx)
	cancel := func() {}
	if d := agent.ToolTimeout(); d > 0 {
		callCtx, cancel = context.WithTimeout(runCtx, d)
	}
	defer cancel()

	toolCtx := core.NewToolContext(callCtx, runCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo(
			"agent.function.start",
			"agent", agent.GetName(),
			"function", fc.Name,
			"function_call_id", fc.ID,
		)
	}

	start := time.Now()
	resp := registry.Invoke(toolCtx, fc)
	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agent.GetName(),
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", resp.Failed(),
	)

	ev := core.NewFunctionResponseEvent(runCtx.RunID, agent.GetName(), resp)
	toolCtx.InternalApplyActions(&ev)
	return ev
}

// cancelledEvent synthesizes the failure response for a call abandoned by
// cancellation, keeping the one-response-per-call contract intact.
func (e *parallelFunctionExecutor) cancelledEvent(runCtx *core.RunContext, agent FlowAgent, fc core.FunctionCall) core.Event {
	resp := core.FunctionResponse{
		ID:    fc.ID,
		Name:  fc.Name,
		Error: tool.NewToolError(fc.Name, "cancelled before execution", tool.CodeExecution).Error(),
	}
	return core.NewFunctionResponseEvent(runCtx.RunID, agent.GetName(), resp)
}
