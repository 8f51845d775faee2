package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/logging"
)

// ClarificationReply is the assistant reply surfaced when routing fails with
// NoMatchError. The orchestrator asks instead of silently picking a default.
const ClarificationReply = "I'm not sure which assistant can help with that. I can handle calendar, email, invoices, social posts, and contacts."

// Descriptor declares one routable agent: its name, a short description used
// by classifier prompts and help output, the keywords forming its intent
// signature, and a priority for breaking score ties (lower wins).
type Descriptor struct {
	Name        string
	Description string
	Keywords    []string
	Priority    int
}

// NoMatchError signals that no registered agent covers the message.
type NoMatchError struct {
	Message string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no agent matched message %q", e.Message)
}

// DuplicateAgentError signals a Register call reusing an agent name.
type DuplicateAgentError struct {
	Agent string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent %q is already registered", e.Agent)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// Classifier is consulted for messages keyword scoring could not place.
	// Nil disables the fallback.
	Classifier Classifier
	// Logger receives routing decisions at debug level.
	Logger logging.Logger
}

// Router maps user messages to registered agent descriptors.
type Router struct {
	mu          sync.RWMutex
	descriptors []Descriptor
	index       map[string]int
	classifier  Classifier
	logger      logging.Logger
}

// New creates an empty router.
func New(optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Router{
		index:      map[string]int{},
		classifier: opts.Classifier,
		logger:     opts.Logger,
	}
}

// WithClassifier sets the fallback classifier.
func WithClassifier(c Classifier) func(o *RouterOptions) {
	return func(o *RouterOptions) { o.Classifier = c }
}

// Register adds a routable agent. Registering a second descriptor under the
// same name fails with *DuplicateAgentError and leaves the router unchanged.
func (r *Router) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("descriptor has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[d.Name]; exists {
		return &DuplicateAgentError{Agent: d.Name}
	}
	r.index[d.Name] = len(r.descriptors)
	r.descriptors = append(r.descriptors, d)
	return nil
}

// Descriptors returns the registered descriptors in registration order.
func (r *Router) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Route picks the agent for a message. A session already bound to an agent
// stays bound unless another agent's signature scores strictly higher, so a
// follow-up without a domain cue is treated as a continuation. Among equally
// scored other agents the lowest Priority wins. When nothing matches and the
// session is unbound the classifier (if any) gets the final say before
// *NoMatchError.
func (r *Router) Route(ctx context.Context, sess *core.Session, message string) (Descriptor, error) {
	candidates := r.Descriptors()
	if len(candidates) == 0 {
		return Descriptor{}, &NoMatchError{Message: message}
	}

	active := ""
	if sess != nil {
		active = sess.ActiveAgent()
	}

	msg := strings.ToLower(message)
	scores := make([]int, len(candidates))
	activeIdx := -1
	for i, d := range candidates {
		scores[i] = keywordScore(msg, d.Keywords)
		if d.Name == active {
			activeIdx = i
		}
	}

	best := -1
	for i := range candidates {
		if i == activeIdx || scores[i] == 0 {
			continue
		}
		if best == -1 || scores[i] > scores[best] ||
			(scores[i] == scores[best] && candidates[i].Priority < candidates[best].Priority) {
			best = i
		}
	}

	if activeIdx >= 0 {
		if best >= 0 && scores[best] > scores[activeIdx] {
			r.logger.Debug("router.switch", "from", active, "to", candidates[best].Name, "score", scores[best])
			return candidates[best], nil
		}
		r.logger.Debug("router.sticky", "agent", active)
		return candidates[activeIdx], nil
	}

	if best >= 0 {
		r.logger.Debug("router.match", "agent", candidates[best].Name, "score", scores[best])
		return candidates[best], nil
	}

	if r.classifier != nil {
		name, err := r.classifier.Classify(ctx, message, candidates)
		if err != nil {
			r.logger.Warn("router.classifier.error", "error", err.Error())
		} else if name != "" {
			for _, d := range candidates {
				if strings.EqualFold(d.Name, name) {
					r.logger.Debug("router.classified", "agent", d.Name)
					return d, nil
				}
			}
			r.logger.Warn("router.classifier.unknown_agent", "name", name)
		}
	}

	return Descriptor{}, &NoMatchError{Message: message}
}

// keywordScore counts signature hits in the lowercased message. Multi-word
// keywords are stronger cues and score double.
func keywordScore(msg string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" || !strings.Contains(msg, k) {
			continue
		}
		if strings.Contains(k, " ") {
			score += 2
		} else {
			score++
		}
	}
	return score
}
