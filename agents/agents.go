package agents

import (
	"fmt"
	"math"
	"time"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

// Deps carries the shared backing services every agent constructor needs.
// Approvals is the engine-wide draft ledger; leaving it nil gives the agent
// a private ledger, which is only useful in tests. Voice is consulted by
// the social agent and may be nil for the others.
type Deps struct {
	Store     *store.Store
	Voice     core.MemoryStore
	Approvals *tool.Approvals
}

// All constructs the five domain agents in routing priority order.
func All(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) []Binding {
	return []Binding{
		NewCalendar(llm, deps, optFns...),
		NewEmail(llm, deps, optFns...),
		NewInvoice(llm, deps, optFns...),
		NewSocial(llm, deps, optFns...),
		NewCRM(llm, deps, optFns...),
	}
}

// Binding pairs an agent with the descriptor that makes it routable.
type Binding struct {
	Agent      *agent.ModelAgent
	Descriptor router.Descriptor
}

// newAgent wires the common construction path: the descriptor's description
// doubles as the agent description, tools land in a registry sharing the
// deps ledger, and caller options apply last so the facade can adjust
// timeouts, history, and streaming.
func newAgent(d router.Descriptor, instruction agent.Instruction, llm model.Model, deps Deps, tools []tool.Tool, optFns []func(o *agent.ModelAgentOptions)) Binding {
	base := func(o *agent.ModelAgentOptions) {
		o.Description = d.Description
		o.Instruction = instruction
		o.Registry = tool.NewRegistry(tool.WithApprovals(deps.Approvals))
		o.Tools = tools
	}
	a := agent.NewModelAgent(d.Name, llm, append([]func(o *agent.ModelAgentOptions){base}, optFns...)...)
	return Binding{Agent: a, Descriptor: d}
}

// promptHeader is the preamble shared by every agent instruction. The date
// is resolved per run so multi-day sessions stay current.
func promptHeader(role string) string {
	return fmt.Sprintf(`You are the %s for Backline, an assistant that runs the back office of a working musician.
Today's date is %s.
Be concise. Musicians are busy. Don't over-explain.
Use 12-hour times when talking to the user and ISO 8601 (UTC) when calling tools.`,
		role, time.Now().Format("Monday, January 2, 2006"))
}

// staticPrompt builds an instruction whose header (and date) resolves at
// run time while the body stays fixed.
func staticPrompt(role, body string) agent.Instruction {
	return agent.NewInstructionFromFunc(func(_ *core.RunContext) (string, error) {
		return promptHeader(role) + "\n\n" + body, nil
	})
}

// -------------------- argument helpers --------------------

// Handlers receive schema-validated args, so these helpers only normalize
// JSON decoding artifacts (float64 numbers, []any arrays), never re-check
// presence of required fields.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// centsArg converts a dollar amount argument to cents. Returns false when
// the argument is absent or not a number.
func centsArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(math.Round(v * 100)), true
	case int:
		return int64(v) * 100, true
	}
	return 0, false
}

// stringsArg reads a string array argument, tolerating both JSON-decoded
// []any and native []string (draft payloads keep Go types).
func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// timeArg parses a timestamp argument. Accepts RFC 3339, a naive ISO
// timestamp (treated as UTC), or a bare date (midnight UTC). The second
// return is false when the argument is absent or empty.
func timeArg(args map[string]any, key string) (time.Time, bool, error) {
	raw := stringArg(args, key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%s %q is not an ISO 8601 timestamp", key, raw)
}

// dateArg parses a YYYY-MM-DD argument.
func dateArg(args map[string]any, key string) (time.Time, bool, error) {
	raw := stringArg(args, key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s %q is not a YYYY-MM-DD date", key, raw)
	}
	return t, true, nil
}
