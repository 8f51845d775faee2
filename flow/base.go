package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
)

// DegradedBudgetReply is the fallback assistant reply when a run exhausts its
// round budget before reaching a final response.
const DegradedBudgetReply = "I'm having trouble completing this request. Could you try rephrasing?"

// roundOutcome signals whether the loop should run another model round.
type roundOutcome int

const (
	roundContinue roundOutcome = iota
	roundDone
)

// ModelFlowOptions configures a ModelFlow.
type ModelFlowOptions struct {
	// MaxParallelTools bounds concurrent tool executions within one batch.
	// Zero or negative means no explicit limit.
	MaxParallelTools int
}

// ModelFlow drives a single agent's request -> model -> tool execution cycle
// until the model produces a final response. The loop alternates between two
// phases: awaiting the model and executing requested tools. Each model call
// spends one unit of the run budget; when the budget is exhausted the flow
// emits a degraded final reply instead of failing the run.
type ModelFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
}

// NewModelFlow creates a flow for the given agent.
func NewModelFlow(agent FlowAgent, optFns ...func(o *ModelFlowOptions)) *ModelFlow {
	opts := ModelFlowOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		executor:           NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: opts.MaxParallelTools}),
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *ModelFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed on each final model response.
func (f *ModelFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// Execute runs model rounds until a final response, budget exhaustion or
// cancellation ends the turn.
func (f *ModelFlow) Execute(runCtx *core.RunContext) error {
	for {
		outcome, err := f.round(runCtx)
		if err != nil {
			return err
		}
		if outcome == roundDone {
			return nil
		}
	}
}

// round performs one model call plus any requested tool executions.
func (f *ModelFlow) round(rc *core.RunContext) (roundOutcome, error) {
	if err := rc.Err(); err != nil {
		return roundDone, err
	}

	if err := rc.Budget.Spend(); err != nil {
		var exceeded *core.BudgetExceededError
		if !errors.As(err, &exceeded) {
			return roundDone, err
		}
		rc.LogWarn("flow.budget.exhausted", "agent", f.agent.GetName(), "limit", exceeded.Limit)
		return roundDone, f.emitDegradedReply(rc, exceeded)
	}

	// Refresh the session snapshot so request processors see the latest
	// conversation, including tool responses from the previous round.
	if err := rc.RefreshSession(); err != nil {
		return roundDone, fmt.Errorf("refresh session: %w", err)
	}

	req := new(model.Request)
	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(rc, req, f.agent); err != nil {
			return roundDone, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}
	f.attachTools(req)
	req.Stream = f.agent.IsStreamingEnabled()

	final, modelErr, err := f.callModel(rc, req)
	if err != nil {
		return roundDone, err
	}
	if modelErr != nil {
		if rc.Err() != nil {
			return roundDone, rc.Err()
		}
		return roundDone, f.emitModelError(rc, modelErr)
	}

	for _, processor := range f.responseProcessors {
		if err := processor.ProcessResponse(rc, final, f.agent); err != nil {
			return roundDone, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	ev := core.NewEvent(rc.RunID, f.agent.GetName())
	content := final.Content
	ev.Content = &content
	partial := false
	ev.Partial = &partial

	calls := ev.GetFunctionCalls()
	if len(calls) == 0 {
		complete := true
		ev.TurnComplete = &complete
		if key := f.agent.GetOutputKey(); key != "" {
			rc.SetState(key, content.Text())
		}
		if err := rc.EmitEvent(ev); err != nil {
			return roundDone, err
		}
		_ = rc.WaitForResume()
		return roundDone, nil
	}

	// Tool request turn: persist it, execute the batch, then run another
	// model round with the results in history.
	if err := rc.EmitEvent(ev); err != nil {
		return roundDone, err
	}
	_ = rc.WaitForResume()

	f.executor.Execute(rc, f.agent, f.agent.GetRegistry(), calls, func(respEv core.Event) error {
		if err := rc.EmitEvent(respEv); err != nil {
			return err
		}
		return rc.WaitForResume()
	})

	return roundContinue, nil
}

// callModel performs one model call bounded by the agent's model timeout,
// emitting partial events while streaming. It returns the final response, a
// model-level failure, or an infrastructure error (cancellation).
func (f *ModelFlow) callModel(rc *core.RunContext, req *model.Request) (*model.Response, error, error) {
	mctx := context.Context(rc)
	cancel := func() {}
	if d := f.agent.ModelTimeout(); d > 0 {
		mctx, cancel = context.WithTimeout(rc, d)
	}
	defer cancel()

	start := time.Now()
	respCh, errCh := f.agent.GetModel().Generate(mctx, *req)

	var final *model.Response
	var modelErr error
loop:
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				break loop
			}
			if resp.Partial {
				if err := f.emitPartial(rc, resp); err != nil {
					return nil, nil, err
				}
				continue
			}
			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			modelErr = err
			break loop
		}
	}
	// The provider may have parked an error behind the closed response
	// channel; pick it up rather than reporting an empty response.
	if final == nil && modelErr == nil && errCh != nil {
		select {
		case err, ok := <-errCh:
			if ok {
				modelErr = err
			}
		default:
		}
	}

	if modelErr == nil && final == nil {
		modelErr = errors.New("model returned no response")
	}
	if modelErr != nil {
		return nil, modelErr, nil
	}

	rc.LogDebug("flow.model.responded",
		"agent", f.agent.GetName(),
		"finish_reason", final.FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return final, nil, nil
}

func (f *ModelFlow) attachTools(req *model.Request) {
	reg := f.agent.GetRegistry()
	if reg == nil {
		return
	}
	if defs := reg.Specs(); len(defs) > 0 {
		req.Tools = defs
	}
}

func (f *ModelFlow) emitPartial(rc *core.RunContext, resp model.Response) error {
	ev := core.NewEvent(rc.RunID, f.agent.GetName())
	content := resp.Content
	ev.Content = &content
	partial := true
	ev.Partial = &partial
	return rc.EmitEvent(ev)
}

// emitDegradedReply ends the turn with the fallback reply after the run
// budget ran out. The run itself still completes normally.
func (f *ModelFlow) emitDegradedReply(rc *core.RunContext, exceeded *core.BudgetExceededError) error {
	ev := core.NewMessageEvent(rc.RunID, f.agent.GetName(), DegradedBudgetReply)
	complete := true
	ev.TurnComplete = &complete
	code := core.ErrorCodeBudgetExceeded
	ev.ErrorCode = &code
	msg := exceeded.Error()
	ev.ErrorMessage = &msg
	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	_ = rc.WaitForResume()
	return nil
}

// emitModelError aborts the turn with an error event. History accumulated so
// far stays intact; the user can retry the turn.
func (f *ModelFlow) emitModelError(rc *core.RunContext, modelErr error) error {
	msg := modelErr.Error()
	if errors.Is(modelErr, context.DeadlineExceeded) {
		msg = fmt.Sprintf("model call exceeded %s", f.agent.ModelTimeout())
	}
	rc.LogError("flow.model.error", "agent", f.agent.GetName(), "error", msg)

	ev := core.NewEvent(rc.RunID, f.agent.GetName())
	code := core.ErrorCodeModel
	ev.ErrorCode = &code
	ev.ErrorMessage = &msg
	complete := true
	ev.TurnComplete = &complete
	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	_ = rc.WaitForResume()
	return nil
}
