package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- BaseAgent Tests --------------------

func TestBaseAgent_NameAndDescription(t *testing.T) {
	b := NewBaseAgent("roadie")
	assert.Equal(t, "roadie", b.Name())
	assert.Equal(t, "Agent roadie", b.Description())

	b.SetDescription("Hauls gear.")
	assert.Equal(t, "Hauls gear.", b.Description())
}

func TestBaseAgent_CountsOverlappingRuns(t *testing.T) {
	b := NewBaseAgent("stagehand")
	rc := newAgentRunContext(t)

	// Two sessions can run the same agent at once.
	require.NoError(t, b.Start(rc))
	require.NoError(t, b.Start(rc))
	assert.Equal(t, 2, b.ActiveRuns())

	require.NoError(t, b.Stop(rc))
	require.NoError(t, b.Stop(rc))
	assert.Equal(t, 0, b.ActiveRuns())

	err := b.Stop(rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestBaseAgent_RestartAfterStop(t *testing.T) {
	b := NewBaseAgent("encore")
	rc := newAgentRunContext(t)

	require.NoError(t, b.Start(rc))
	require.NoError(t, b.Stop(rc))
	require.NoError(t, b.Start(rc))
	require.NoError(t, b.Stop(rc))
}
