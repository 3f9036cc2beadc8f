package scheduler

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go_pipeline_project/config"
	"go_pipeline_project/services"
)

// dispatchTick is how often the dispatch loop polls the job table. Schedule
// resolution is one minute, so one second keeps fire latency negligible
// without busy-waiting.
const dispatchTick = 1 * time.Second

// SchedulerCore owns the daily pipeline: the job table, the recovery pass on
// start, and the dispatch loop that fires due jobs. All job execution is
// synchronous on the dispatch goroutine; phases never overlap.
type SchedulerCore struct {
	cfg      *config.Config
	registry *ScheduleRegistry
	collab   Collaborators
	notifier services.NotificationPort
	journal  Journal
	events   EventSink
	state    *RuntimeState

	// now is the clock; tests replace it.
	now func() time.Time

	stopChan chan struct{}
	loopDone chan struct{}
}

// NewSchedulerCore wires the scheduler with its collaborators.
func NewSchedulerCore(cfg *config.Config, collab Collaborators,
	notifier services.NotificationPort, journal Journal, events EventSink) *SchedulerCore {
	return &SchedulerCore{
		cfg:      cfg,
		registry: NewScheduleRegistry(),
		collab:   collab,
		notifier: notifier,
		journal:  journal,
		events:   events,
		state:    NewRuntimeState(),
		now:      time.Now,
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// SetupSchedule rebuilds the job table from the configuration: the weekday
// market phases, the per-slot batch jobs, and the weekend jobs.
func (c *SchedulerCore) SetupSchedule() error {
	c.registry.Clear()
	weekdays := Weekdays()

	if err := c.registry.Register(PhaseCacheClear.String(), PhaseCacheClear, nil, c.cfg.CacheClearTime,
		func() { c.runCacheClear(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseScreening.String(), PhaseScreening, weekdays, c.cfg.ScreeningTime,
		func() { c.runScreening(SourceSchedule) }); err != nil {
		return err
	}
	for i, at := range c.cfg.BatchTimes() {
		batchID := i
		jobID := fmt.Sprintf("batch_%02d", batchID)
		if err := c.registry.Register(jobID, PhaseBatchSelection, weekdays, at,
			func() { c.runBatchSelection(batchID, SourceSchedule) }); err != nil {
			return err
		}
	}
	if err := c.registry.Register(PhaseTradingStart.String(), PhaseTradingStart, weekdays, c.cfg.TradingStartTime,
		func() { c.runTradingStart(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseTradingStop.String(), PhaseTradingStop, weekdays, c.cfg.TradingStopTime,
		func() { c.runTradingStop(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseMarketClose.String(), PhaseMarketClose, weekdays, c.cfg.MarketCloseTime,
		func() { c.runMarketClose(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseAISync.String(), PhaseAISync, nil, c.cfg.AISyncTime,
		func() { c.runAISync(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseFundamentals.String(), PhaseFundamentals,
		[]time.Weekday{time.Saturday}, c.cfg.FundamentalsTime,
		func() { c.runFundamentals(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseMaintenance.String(), PhaseMaintenance,
		[]time.Weekday{time.Sunday}, c.cfg.MaintenanceTime,
		func() { c.runMaintenance(SourceSchedule) }); err != nil {
		return err
	}
	if err := c.registry.Register(PhaseHealthCheck.String(), PhaseHealthCheck, weekdays, c.cfg.HealthCheckTime,
		func() { c.runHealthCheck(SourceSchedule) }); err != nil {
		return err
	}

	log.Printf("Schedule built: %d jobs registered", c.registry.Len())
	return nil
}

// Run starts the scheduler and blocks until a shutdown signal arrives.
// Ordering matters: configuration and directories are checked first, then
// exactly one recovery pass runs before the dispatch loop sees the job table,
// so recovery and scheduled fires can never interleave.
func (c *SchedulerCore) Run() error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if err := c.cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := c.SetupSchedule(); err != nil {
		return err
	}

	startedAt := c.now()
	c.RunRecovery(startedAt)

	c.state.SetRunning(true)
	c.registry.Prime(c.now())
	go c.dispatchLoop()
	log.Printf("Scheduler running (started %s)", startedAt.Format(time.RFC3339))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	c.GracefulShutdown(fmt.Sprintf("signal %s", sig))
	return nil
}

// dispatchLoop polls the job table and fires due jobs in registration order.
// A panicking job is logged and never stops dispatch of the jobs after it.
func (c *SchedulerCore) dispatchLoop() {
	defer close(c.loopDone)

	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			for _, entry := range c.registry.DueJobs(c.now()) {
				c.fire(entry)
			}
		}
	}
}

// fire runs one due job with panic isolation.
func (c *SchedulerCore) fire(entry *ScheduleEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in job %s: %v", entry.JobID, r)
		}
	}()
	entry.Action()
}

// GracefulShutdown stops the dispatch loop and clears the job table. A job
// running at shutdown time is given a bounded grace period to finish.
func (c *SchedulerCore) GracefulShutdown(reason string) {
	if !c.state.IsRunning() {
		return
	}
	log.Printf("Scheduler shutting down: %s", reason)
	c.notifier.Send(fmt.Sprintf("Scheduler shutting down: %s", reason), services.PriorityHigh)

	c.state.SetRunning(false)
	close(c.stopChan)
	select {
	case <-c.loopDone:
	case <-time.After(10 * time.Second):
		log.Println("Timed out waiting for dispatch loop to finish")
	}
	c.registry.Clear()
	log.Println("Scheduler stopped")
}

// TriggerPhase runs one phase on demand, recorded with the manual source.
// batchID is only consulted for batch_selection. Unknown names are rejected.
func (c *SchedulerCore) TriggerPhase(name string, batchID int) (bool, error) {
	switch name {
	case PhaseCacheClear.String():
		return c.runCacheClear(SourceManual), nil
	case PhaseScreening.String():
		return c.runScreening(SourceManual), nil
	case PhaseBatchSelection.String():
		if batchID < 0 || batchID >= c.collab.Batches.BatchCount() {
			return false, &services.RangeError{BatchID: batchID, BatchCount: c.collab.Batches.BatchCount()}
		}
		return c.runBatchSelection(batchID, SourceManual), nil
	case PhaseTradingStart.String():
		return c.runTradingStart(SourceManual), nil
	case PhaseTradingStop.String():
		return c.runTradingStop(SourceManual), nil
	case PhaseMarketClose.String():
		return c.runMarketClose(SourceManual), nil
	case PhaseAISync.String():
		return c.runAISync(SourceManual), nil
	case PhaseFundamentals.String():
		return c.runFundamentals(SourceManual), nil
	case PhaseMaintenance.String():
		return c.runMaintenance(SourceManual), nil
	case PhaseHealthCheck.String():
		return c.runHealthCheck(SourceManual), nil
	default:
		return false, fmt.Errorf("unknown phase %q", name)
	}
}

// StatusSnapshot is the scheduler's status-API payload.
type StatusSnapshot struct {
	State         StateSnapshot `json:"state"`
	Jobs          []JobInfo     `json:"jobs"`
	TradingActive bool          `json:"trading_active"`
}

// Status returns a point-in-time view for the status API.
func (c *SchedulerCore) Status() StatusSnapshot {
	return StatusSnapshot{
		State:         c.state.Snapshot(),
		Jobs:          c.registry.Snapshot(),
		TradingActive: c.collab.Trading.IsRunning(),
	}
}
