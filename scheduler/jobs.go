package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go_pipeline_project/services"
)

// Execution sources recorded in the journal and events.
const (
	SourceSchedule = "schedule"
	SourceRecovery = "recovery"
	SourceManual   = "manual"
)

// Per-phase timeouts for the synchronous invoke bridge.
const (
	DefaultJobTimeout   = 2 * time.Minute
	ScreeningJobTimeout = 10 * time.Minute
	BatchJobTimeout     = 4 * time.Minute
	SyncJobTimeout      = 5 * time.Minute
)

// ScreeningEngine runs the morning screen and answers whether it ran today.
type ScreeningEngine interface {
	Run(ctx context.Context, date time.Time) (bool, map[string]interface{})
	HasRunForDate(date time.Time) (bool, error)
}

// SelectionEngine produces one candidate batch per slot.
type SelectionEngine interface {
	SelectBatch(ctx context.Context, batchID int, date time.Time) (bool, map[string]interface{})
}

// ExecutionEngine is the trading window lifecycle.
type ExecutionEngine interface {
	Start(ctx context.Context) (bool, map[string]interface{})
	Stop(ctx context.Context) (bool, map[string]interface{})
	IsRunning() bool
}

// MaintenanceRunner covers cache clearing, market close and weekly cleanup.
type MaintenanceRunner interface {
	ClearCache(ctx context.Context, date time.Time) (bool, map[string]interface{})
	MarketClose(ctx context.Context, date time.Time) (bool, map[string]interface{})
	RunWeeklyMaintenance(ctx context.Context) (bool, map[string]interface{})
}

// HealthChecker probes process dependencies.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (bool, map[string]interface{})
}

// SyncEngine pushes the daily summary downstream.
type SyncEngine interface {
	Run(ctx context.Context, date time.Time) (bool, map[string]interface{})
}

// FundamentalsPuller refreshes the universe's fundamentals.
type FundamentalsPuller interface {
	RunFundamentalsPull(ctx context.Context) (bool, map[string]interface{})
}

// BatchOracle answers batch completion questions for recovery.
type BatchOracle interface {
	BatchCount() int
	IsBatchComplete(batchID int, targetDate time.Time) (bool, error)
	GetCompletionStatus(targetDate time.Time) (completed, incomplete []int)
}

// Journal records job executions.
type Journal interface {
	Record(entry services.JournalEntry)
}

// EventSink receives job lifecycle events.
type EventSink interface {
	Publish(event services.JobEvent)
}

// Collaborators bundles every engine the scheduler drives. All of them are
// interfaces so tests can substitute fakes without a database.
type Collaborators struct {
	Screening    ScreeningEngine
	Selection    SelectionEngine
	Trading      ExecutionEngine
	Maintenance  MaintenanceRunner
	Monitoring   HealthChecker
	AISync       SyncEngine
	Fundamentals FundamentalsPuller
	Batches      BatchOracle
}

// jobResult is what a collaborator call produced.
type jobResult struct {
	success bool
	details map[string]interface{}
}

// invoke bridges the scheduler's synchronous dispatch onto a collaborator
// call: fresh timeout context, the call in its own goroutine, and a blocking
// wait for the result. A timeout counts as failure but leaves the goroutine
// to finish on its own; collaborators are expected to honor ctx.
func invoke(timeout time.Duration, fn func(ctx context.Context) (bool, map[string]interface{})) jobResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resultCh := make(chan jobResult, 1)
	go func() {
		success, details := fn(ctx)
		resultCh <- jobResult{success: success, details: details}
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return jobResult{success: false, details: map[string]interface{}{"error": "timed out after " + timeout.String()}}
	}
}

// execute runs one job end to end: started event, the collaborator call via
// invoke, a journal row, exactly one notification, and a finished event.
// Returns whether the job succeeded.
func (c *SchedulerCore) execute(jobID string, phase Phase, source string, timeout time.Duration,
	fn func(ctx context.Context) (bool, map[string]interface{})) bool {

	started := c.now()
	c.events.Publish(services.JobEvent{
		JobID:  jobID,
		Phase:  phase.String(),
		Status: "started",
		Source: source,
		At:     started.Format(time.RFC3339),
	})

	res := invoke(timeout, fn)
	elapsed := c.now().Sub(started)
	detail := detailString(res.details)

	c.journal.Record(services.JournalEntry{
		JobID:     jobID,
		Phase:     phase.String(),
		Source:    source,
		StartedAt: started,
		Duration:  elapsed.Milliseconds(),
		Success:   res.success,
		Detail:    detail,
	})

	status := "succeeded"
	priority := services.PriorityNormal
	if !res.success {
		status = "failed"
		priority = services.PriorityHigh
		log.Printf("Job %s failed (%s): %s", jobID, source, detail)
	} else {
		log.Printf("Job %s completed in %s (%s)", jobID, elapsed.Round(time.Millisecond), source)
	}
	c.notifier.Send(fmt.Sprintf("[%s] %s %s %s", source, jobID, status, detail), priority)

	c.events.Publish(services.JobEvent{
		JobID:    jobID,
		Phase:    phase.String(),
		Status:   status,
		Source:   source,
		At:       c.now().Format(time.RFC3339),
		Duration: elapsed.Milliseconds(),
		Detail:   detail,
	})
	return res.success
}

// runCacheClear removes the previous day's working artifacts.
func (c *SchedulerCore) runCacheClear(source string) bool {
	date := c.now()
	return c.execute(PhaseCacheClear.String(), PhaseCacheClear, source, DefaultJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Maintenance.ClearCache(ctx, date)
		})
}

// runScreening runs the morning screen for today.
func (c *SchedulerCore) runScreening(source string) bool {
	date := c.now()
	ok := c.execute(PhaseScreening.String(), PhaseScreening, source, ScreeningJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Screening.Run(ctx, date)
		})
	if ok {
		c.state.MarkPhase(PhaseScreening, c.now())
	}
	return ok
}

// runBatchSelection builds the artifact for one batch slot.
func (c *SchedulerCore) runBatchSelection(batchID int, source string) bool {
	date := c.now()
	jobID := fmt.Sprintf("batch_%02d", batchID)
	ok := c.execute(jobID, PhaseBatchSelection, source, BatchJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Selection.SelectBatch(ctx, batchID, date)
		})
	if ok {
		c.state.MarkBatch(batchID, c.now())
	}
	return ok
}

// runTradingStart opens the trading window.
func (c *SchedulerCore) runTradingStart(source string) bool {
	ok := c.execute(PhaseTradingStart.String(), PhaseTradingStart, source, DefaultJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Trading.Start(ctx)
		})
	if ok {
		c.state.MarkPhase(PhaseTradingStart, c.now())
	}
	return ok
}

// runTradingStop closes the trading window.
func (c *SchedulerCore) runTradingStop(source string) bool {
	ok := c.execute(PhaseTradingStop.String(), PhaseTradingStop, source, DefaultJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Trading.Stop(ctx)
		})
	if ok {
		c.state.MarkPhase(PhaseTradingStop, c.now())
	}
	return ok
}

// runMarketClose settles the day: expire pending orders.
func (c *SchedulerCore) runMarketClose(source string) bool {
	date := c.now()
	ok := c.execute(PhaseMarketClose.String(), PhaseMarketClose, source, DefaultJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Maintenance.MarketClose(ctx, date)
		})
	if ok {
		c.state.MarkPhase(PhaseMarketClose, c.now())
	}
	return ok
}

// runAISync pushes today's summary downstream.
func (c *SchedulerCore) runAISync(source string) bool {
	date := c.now()
	ok := c.execute(PhaseAISync.String(), PhaseAISync, source, SyncJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.AISync.Run(ctx, date)
		})
	if ok {
		c.state.MarkPhase(PhaseAISync, c.now())
	}
	return ok
}

// runFundamentals refreshes the universe's fundamentals (Saturday job).
func (c *SchedulerCore) runFundamentals(source string) bool {
	return c.execute(PhaseFundamentals.String(), PhaseFundamentals, source, SyncJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Fundamentals.RunFundamentalsPull(ctx)
		})
}

// runMaintenance prunes aged rows (Sunday job).
func (c *SchedulerCore) runMaintenance(source string) bool {
	return c.execute(PhaseMaintenance.String(), PhaseMaintenance, source, SyncJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Maintenance.RunWeeklyMaintenance(ctx)
		})
}

// runHealthCheck probes process dependencies mid-session.
func (c *SchedulerCore) runHealthCheck(source string) bool {
	ok := c.execute(PhaseHealthCheck.String(), PhaseHealthCheck, source, DefaultJobTimeout,
		func(ctx context.Context) (bool, map[string]interface{}) {
			return c.collab.Monitoring.HealthCheck(ctx)
		})
	if ok {
		c.state.MarkPhase(PhaseHealthCheck, c.now())
	}
	return ok
}

// detailString flattens a details map for the journal and notifications.
func detailString(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf("%v", details)
	}
	return string(data)
}
