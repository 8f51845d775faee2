package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/tool"
)

// -------------------- Contacts Agent Tests --------------------

func TestCRM_AddContact(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCRM(testLLM(), deps)

	m := responseMap(t, invoke(t, b.Agent, "s1", "add_contact", map[string]any{
		"organization": "The Drunken Unicorn",
		"person":       "Max Rivera",
		"role":         "venue",
		"email":        "max@drunkenunicorn.com",
		"tags":         []any{"atlanta", "late night"},
		"rate":         "$300 flat",
	}))

	c, ok := m["contact"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "The Drunken Unicorn", c["organization"])
	assert.Equal(t, "venue", c["role"])
	require.NotEmpty(t, c["id"])

	found, err := deps.Store.FindContacts(context.Background(), "unicorn", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Max Rivera", found[0].Person)
	assert.Equal(t, []string{"atlanta", "late night"}, found[0].Tags)
}

func TestCRM_AddContactRequiresOrganization(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCRM(testLLM(), deps)

	resp := invoke(t, b.Agent, "s1", "add_contact", map[string]any{
		"person": "Max Rivera",
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, tool.CodeValidation)
	assert.Contains(t, resp.Error, "organization")
}

func TestCRM_FindContactAttachesHistoryOnSingleMatch(t *testing.T) {
	deps := seededDeps(t)
	b := NewCRM(testLLM(), deps)

	m := responseMap(t, invoke(t, b.Agent, "s1", "find_contact", map[string]any{
		"query": "west end",
	}))
	assert.Equal(t, 1, m["count"])
	interactions, ok := m["interactions"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, interactions, 2)

	// Multiple matches come back without history; the model narrows first.
	m = responseMap(t, invoke(t, b.Agent, "s1", "find_contact", map[string]any{
		"query": "e",
	}))
	require.Greater(t, m["count"], 1)
	assert.NotContains(t, m, "interactions")
}

func TestCRM_ListContacts(t *testing.T) {
	deps := seededDeps(t)
	b := NewCRM(testLLM(), deps)

	m := responseMap(t, invoke(t, b.Agent, "s1", "list_contacts", map[string]any{}))
	assert.Equal(t, 3, m["count"])
	contacts, ok := m["contacts"].([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, "The Earl", contacts[0]["organization"])
}

func TestCRM_LogInteraction(t *testing.T) {
	deps := seededDeps(t)
	b := NewCRM(testLLM(), deps)

	m := responseMap(t, invoke(t, b.Agent, "s1", "log_interaction", map[string]any{
		"contact_id": "contact_the_earl",
		"kind":       "call",
		"content":    "Confirmed March 22. $400 guarantee plus door split.",
		"date":       "2026-03-04",
		"follow_up":  "2026-03-18",
	}))
	in, ok := m["interaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "call", in["kind"])
	assert.Equal(t, "2026-03-04", in["date"])
	assert.Equal(t, "2026-03-18", in["follow_up"])

	// Logging moves the relationship clock forward.
	contacts, err := deps.Store.FindContacts(context.Background(), "earl", "")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "2026-03-04", contacts[0].LastContact)

	resp := invoke(t, b.Agent, "s1", "log_interaction", map[string]any{
		"contact_id": "contact_nobody",
		"content":    "ghost note",
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, "not found")
}
