package flow

import (
	"fmt"

	"github.com/backline-ai/backline/core"
	internalutil "github.com/backline-ai/backline/internal/util"
	"github.com/backline-ai/backline/model"
)

// InstructionsProcessor handles system prompt and instruction processing.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds system instructions to the chat request.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	if runCtx.Session != nil && runCtx.Session.State != nil {
		var tplErr error
		// Apply template substitution to system prompt using session state
		req.Instructions, tplErr = internalutil.RenderTemplate(instructions, runCtx.Session.State)
		if tplErr != nil {
			return fmt.Errorf("failed to render template: %w", tplErr)
		}
	} else {
		req.Instructions = instructions
	}

	return nil
}

// ContentsProcessor assembles the conversation history for the model request.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest adds the agent's conversation history to the chat request,
// windowed to the most recent MaxHistoryMessages entries. The window is
// widened when necessary so the newest user message is always included: a
// long tool exchange must not push the instruction the agent is working on
// out of view.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	if runCtx.Session == nil {
		return nil
	}

	history := runCtx.Session.History(runCtx.Branch)
	req.Contents = windowHistory(history, agent.MaxHistoryMessages())
	return nil
}

// windowHistory trims history to its last max entries while keeping the most
// recent user message in view. max <= 0 disables trimming.
func windowHistory(history []core.Content, max int) []core.Content {
	if max <= 0 || len(history) <= max {
		return history
	}
	cut := len(history) - max
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == core.RoleUser {
			if i < cut {
				cut = i
			}
			break
		}
	}
	return history[cut:]
}
