package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
)

// Classifier resolves an agent name for messages keyword scoring could not
// place. Implementations return the empty string when no candidate fits.
type Classifier interface {
	Classify(ctx context.Context, message string, candidates []Descriptor) (string, error)
}

// ModelClassifier asks a language model to pick the candidate whose duties
// cover the message. One short non-streaming call per classification.
type ModelClassifier struct {
	llm model.Model
}

// NewModelClassifier creates a classifier backed by the given model.
func NewModelClassifier(llm model.Model) *ModelClassifier {
	return &ModelClassifier{llm: llm}
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, message string, candidates []Descriptor) (string, error) {
	var b strings.Builder
	b.WriteString("You route requests for a working musician's assistant to exactly one agent.\nAgents:\n")
	for _, d := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("Reply with one agent name from the list, or the word none.")

	req := model.Request{
		Instructions: b.String(),
		Contents: []core.Content{{
			Role:  core.RoleUser,
			Parts: []core.Part{core.TextPart{Text: message}},
		}},
	}

	respCh, errCh := c.llm.Generate(ctx, req)
	reply := ""
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				continue
			}
			reply = resp.Content.Text()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	verdict := strings.ToLower(strings.TrimSpace(reply))
	if verdict == "" || verdict == "none" {
		return "", nil
	}
	for _, d := range candidates {
		if strings.Contains(verdict, strings.ToLower(d.Name)) {
			return d.Name, nil
		}
	}
	return "", nil
}
