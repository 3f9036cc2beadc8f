package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_pipeline_project/config"
	"go_pipeline_project/services"
)

// --- fakes shared by the scheduler package tests ---

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Send(message string, priority services.Priority) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []services.JournalEntry
}

func (f *fakeJournal) Record(entry services.JournalEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeJournal) bySource(source string) []services.JournalEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []services.JournalEntry
	for _, e := range f.entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

type fakeEvents struct {
	mu     sync.Mutex
	events []services.JobEvent
}

func (f *fakeEvents) Publish(event services.JobEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeScreening struct {
	mu     sync.Mutex
	runs   int
	fail   bool
	hasRun bool
	hasErr error
}

func (f *fakeScreening) Run(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.fail {
		return false, map[string]interface{}{"error": "screen failed"}
	}
	f.hasRun = true
	return true, map[string]interface{}{"candidates": 90}
}

func (f *fakeScreening) HasRunForDate(date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasRun, f.hasErr
}

type fakeBatches struct {
	mu       sync.Mutex
	count    int
	complete map[int]bool
}

func (f *fakeBatches) BatchCount() int { return f.count }

func (f *fakeBatches) IsBatchComplete(batchID int, targetDate time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete[batchID], nil
}

func (f *fakeBatches) GetCompletionStatus(targetDate time.Time) (completed, incomplete []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := 0; id < f.count; id++ {
		if f.complete[id] {
			completed = append(completed, id)
		} else {
			incomplete = append(incomplete, id)
		}
	}
	return completed, incomplete
}

// fakeSelection marks batches complete on success, the way the real selection
// engine's artifact write flips the tracker's answer.
type fakeSelection struct {
	mu      sync.Mutex
	calls   []int
	batches *fakeBatches
}

func (f *fakeSelection) SelectBatch(ctx context.Context, batchID int, date time.Time) (bool, map[string]interface{}) {
	f.mu.Lock()
	f.calls = append(f.calls, batchID)
	f.mu.Unlock()

	f.batches.mu.Lock()
	f.batches.complete[batchID] = true
	f.batches.mu.Unlock()
	return true, map[string]interface{}{"batch_id": batchID}
}

func (f *fakeSelection) callIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int{}, f.calls...)
}

type fakeTrading struct {
	mu         sync.Mutex
	running    bool
	startCalls int
	stopCalls  int
}

func (f *fakeTrading) Start(ctx context.Context) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.running {
		return false, map[string]interface{}{"reason": "already running"}
	}
	f.running = true
	return true, nil
}

func (f *fakeTrading) Stop(ctx context.Context) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	wasRunning := f.running
	f.running = false
	return true, map[string]interface{}{"was_running": wasRunning}
}

func (f *fakeTrading) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeMaintenance struct {
	mu          sync.Mutex
	clearCalls  int
	closeCalls  int
	weeklyCalls int
}

func (f *fakeMaintenance) ClearCache(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	return true, nil
}

func (f *fakeMaintenance) MarketClose(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return true, nil
}

func (f *fakeMaintenance) RunWeeklyMaintenance(ctx context.Context) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weeklyCalls++
	return true, nil
}

type fakeMonitoring struct{ calls int }

func (f *fakeMonitoring) HealthCheck(ctx context.Context) (bool, map[string]interface{}) {
	f.calls++
	return true, map[string]interface{}{"database": "ok"}
}

type fakeSync struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSync) Run(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return true, nil
}

func (f *fakeSync) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFundamentals struct{ calls int }

func (f *fakeFundamentals) RunFundamentalsPull(ctx context.Context) (bool, map[string]interface{}) {
	f.calls++
	return true, nil
}

// --- test harness ---

type harness struct {
	core        *SchedulerCore
	cfg         *config.Config
	notifier    *fakeNotifier
	journal     *fakeJournal
	events      *fakeEvents
	screening   *fakeScreening
	selection   *fakeSelection
	trading     *fakeTrading
	maintenance *fakeMaintenance
	aiSync      *fakeSync
	batches     *fakeBatches
}

func testConfig() *config.Config {
	return &config.Config{
		BatchCount:           18,
		BatchIntervalMinutes: 5,
		BatchStart:           config.TimeOfDay{Hour: 7, Minute: 0},
		CacheClearTime:       config.TimeOfDay{Hour: 6, Minute: 0},
		ScreeningTime:        config.TimeOfDay{Hour: 6, Minute: 45},
		TradingStartTime:     config.TimeOfDay{Hour: 8, Minute: 35},
		TradingStopTime:      config.TimeOfDay{Hour: 14, Minute: 45},
		MarketCloseTime:      config.TimeOfDay{Hour: 15, Minute: 15},
		AISyncTime:           config.TimeOfDay{Hour: 16, Minute: 0},
		FundamentalsTime:     config.TimeOfDay{Hour: 10, Minute: 0},
		MaintenanceTime:      config.TimeOfDay{Hour: 1, Minute: 0},
		HealthCheckTime:      config.TimeOfDay{Hour: 11, Minute: 30},
		WorkerCount:          4,
	}
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	h := &harness{
		cfg:         testConfig(),
		notifier:    &fakeNotifier{},
		journal:     &fakeJournal{},
		events:      &fakeEvents{},
		screening:   &fakeScreening{},
		trading:     &fakeTrading{},
		maintenance: &fakeMaintenance{},
		aiSync:      &fakeSync{},
		batches:     &fakeBatches{count: 18, complete: make(map[int]bool)},
	}
	h.selection = &fakeSelection{batches: h.batches}

	h.core = NewSchedulerCore(h.cfg, Collaborators{
		Screening:    h.screening,
		Selection:    h.selection,
		Trading:      h.trading,
		Maintenance:  h.maintenance,
		Monitoring:   &fakeMonitoring{},
		AISync:       h.aiSync,
		Fundamentals: &fakeFundamentals{},
		Batches:      h.batches,
	}, h.notifier, h.journal, h.events)
	h.core.now = func() time.Time { return now }
	return h
}

// mustMonday returns a known Monday at the given wall-clock time.
func mustMonday(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	day := time.Date(2026, 1, 5, hour, minute, 0, 0, time.Local)
	require.Equal(t, time.Monday, day.Weekday())
	return day
}

// --- scheduler core tests ---

func TestSetupScheduleRegistersAllJobs(t *testing.T) {
	h := newHarness(t, mustMonday(t, 6, 0))
	require.NoError(t, h.core.SetupSchedule())

	// 9 named phases plus one job per batch slot.
	assert.Equal(t, 9+h.cfg.BatchCount, h.core.registry.Len())

	jobs := h.core.registry.Snapshot()
	ids := make(map[string]bool)
	for _, job := range jobs {
		ids[job.JobID] = true
	}
	for _, want := range []string{
		"cache_clear", "screening", "batch_00", "batch_17",
		"trading_start", "trading_stop", "market_close", "ai_sync",
		"fundamentals_pull", "weekly_maintenance", "health_check",
	} {
		assert.True(t, ids[want], "missing job %s", want)
	}
}

func TestDispatchPanicDoesNotBlockNextJob(t *testing.T) {
	h := newHarness(t, mustMonday(t, 9, 0))
	reg := h.core.registry

	fired := false
	require.NoError(t, reg.Register("bad", PhaseHealthCheck, nil, config.TimeOfDay{Hour: 9, Minute: 30},
		func() { panic("boom") }))
	require.NoError(t, reg.Register("good", PhaseHealthCheck, nil, config.TimeOfDay{Hour: 9, Minute: 30},
		func() { fired = true }))

	reg.Prime(mustMonday(t, 9, 0))
	due := reg.DueJobs(mustMonday(t, 9, 30))
	require.Len(t, due, 2)

	for _, entry := range due {
		h.core.fire(entry)
	}
	assert.True(t, fired, "job after the panicking one must still fire")
}

func TestGracefulShutdownStopsDispatchAndClearsTable(t *testing.T) {
	h := newHarness(t, mustMonday(t, 9, 0))
	require.NoError(t, h.core.SetupSchedule())

	h.core.state.SetRunning(true)
	h.core.registry.Prime(h.core.now())
	go h.core.dispatchLoop()

	h.core.GracefulShutdown("test")

	assert.False(t, h.core.state.IsRunning())
	assert.Equal(t, 0, h.core.registry.Len())

	select {
	case <-h.core.loopDone:
	default:
		t.Fatal("dispatch loop still running after shutdown")
	}

	// Second shutdown is a no-op, not a double-close panic.
	h.core.GracefulShutdown("test again")
}

func TestExecuteNotifiesExactlyOncePerJob(t *testing.T) {
	h := newHarness(t, mustMonday(t, 8, 35))

	ok := h.core.runTradingStart(SourceSchedule)
	assert.True(t, ok)
	assert.Equal(t, 1, h.notifier.count())

	entries := h.journal.bySource(SourceSchedule)
	require.Len(t, entries, 1)
	assert.Equal(t, "trading_start", entries[0].JobID)
	assert.True(t, entries[0].Success)
}

func TestExecuteFailureNotifiesAndJournalsFailure(t *testing.T) {
	h := newHarness(t, mustMonday(t, 6, 45))
	h.screening.fail = true

	ok := h.core.runScreening(SourceSchedule)
	assert.False(t, ok)
	assert.Equal(t, 1, h.notifier.count())

	entries := h.journal.bySource(SourceSchedule)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Contains(t, entries[0].Detail, "screen failed")
}

func TestTriggerPhaseManualSource(t *testing.T) {
	h := newHarness(t, mustMonday(t, 12, 0))

	ok, err := h.core.TriggerPhase("health_check", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	entries := h.journal.bySource(SourceManual)
	require.Len(t, entries, 1)
	assert.Equal(t, "health_check", entries[0].JobID)
}

func TestTriggerPhaseRejectsUnknownAndOutOfRange(t *testing.T) {
	h := newHarness(t, mustMonday(t, 12, 0))

	_, err := h.core.TriggerPhase("no_such_phase", 0)
	assert.Error(t, err)

	_, err = h.core.TriggerPhase("batch_selection", 18)
	require.Error(t, err)
	var rangeErr *services.RangeError
	assert.ErrorAs(t, err, &rangeErr)
	assert.Empty(t, h.selection.callIDs())
}

func TestStatusReflectsState(t *testing.T) {
	now := mustMonday(t, 8, 35)
	h := newHarness(t, now)
	require.NoError(t, h.core.SetupSchedule())

	h.core.runTradingStart(SourceSchedule)

	status := h.core.Status()
	assert.True(t, status.TradingActive)
	assert.Equal(t, now, status.State.LastTradingStartAt)
	assert.Len(t, status.Jobs, 9+h.cfg.BatchCount)
}
