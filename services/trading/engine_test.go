package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_pipeline_project/services"
)

// newIdleEngine returns an engine over an empty batch directory, so its
// cycle loop finds no completed batches and never touches the database.
func newIdleEngine(t *testing.T) *Engine {
	t.Helper()
	tracker := services.NewBatchStateTracker(18, t.TempDir())
	return NewEngine(nil, tracker)
}

func TestStartRejectsSecondStart(t *testing.T) {
	e := newIdleEngine(t)
	defer e.Stop(context.Background())

	ok, _ := e.Start(context.Background())
	require.True(t, ok)
	assert.True(t, e.IsRunning())

	ok, details := e.Start(context.Background())
	assert.False(t, ok, "second start while running must be rejected")
	assert.Equal(t, "already running", details["reason"])
	assert.True(t, e.IsRunning())
}

func TestStopIdleEngineSucceeds(t *testing.T) {
	e := newIdleEngine(t)

	ok, details := e.Stop(context.Background())
	assert.True(t, ok, "stopping an idle engine is success: the desired state already holds")
	assert.Equal(t, false, details["was_running"])
}

func TestStartStopStartCycle(t *testing.T) {
	e := newIdleEngine(t)

	ok, _ := e.Start(context.Background())
	require.True(t, ok)

	ok, details := e.Stop(context.Background())
	require.True(t, ok)
	assert.Equal(t, true, details["was_running"])
	assert.False(t, e.IsRunning())

	// A fresh start after a clean stop works.
	ok, _ = e.Start(context.Background())
	assert.True(t, ok)
	e.Stop(context.Background())
}
