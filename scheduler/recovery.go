package scheduler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"go_pipeline_project/services"
)

// RunRecovery reconciles the pipeline after a mid-day start or restart: for
// every phase whose scheduled time already passed today it checks the durable
// evidence (screening rows, batch artifacts, engine state) and re-drives only
// what verifiably did not happen. Weekends are a no-op.
//
// Recovery runs before the dispatch loop starts, so it never races a
// scheduled fire of the same phase. Returns the names of the actions it
// actually executed.
func (c *SchedulerCore) RunRecovery(now time.Time) []string {
	phases := PhasesDueBefore(c.cfg, now)
	if len(phases) == 0 {
		return nil
	}
	log.Printf("Recovery pass at %s covering %d phase(s)", now.Format("15:04:05"), len(phases))

	var executed []string
	for _, phase := range phases {
		executed = append(executed, c.recoverPhase(phase, now)...)
	}

	if len(executed) > 0 {
		c.notifier.Send(
			fmt.Sprintf("Recovery executed %d action(s): %s", len(executed), strings.Join(executed, ", ")),
			services.PriorityNormal,
		)
	} else {
		log.Println("Recovery pass found nothing to do")
	}
	return executed
}

// recoverPhase runs one phase's recovery step with panic isolation, so a
// defect in one step never blocks the steps after it.
func (c *SchedulerCore) recoverPhase(phase Phase, now time.Time) (executed []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in %s recovery: %v", phase, r)
		}
	}()

	switch phase {
	case PhaseScreening:
		return c.recoverScreening(now)
	case PhaseBatchSelection:
		return c.recoverBatches(now)
	case PhaseTradingStart:
		return c.recoverTrading()
	case PhaseMarketClose:
		if c.runMarketClose(SourceRecovery) {
			return []string{PhaseMarketClose.String()}
		}
	case PhaseAISync:
		if c.runAISync(SourceRecovery) {
			return []string{PhaseAISync.String()}
		}
	}
	return nil
}

// recoverScreening re-runs the screen when no completed run exists for today.
// The database row is the authoritative check; the result file's freshness is
// only consulted when the store itself cannot answer.
func (c *SchedulerCore) recoverScreening(now time.Time) []string {
	done, err := c.collab.Screening.HasRunForDate(now)
	if err != nil {
		log.Printf("Error checking screening run, falling back to artifact check: %v", err)
		cutoff := time.Date(now.Year(), now.Month(), now.Day(),
			c.cfg.ScreeningTime.Hour, c.cfg.ScreeningTime.Minute, 0, 0, now.Location())
		done = services.CheckArtifact(c.cfg.ScreeningFile, cutoff)
	}
	if done {
		return nil
	}
	if c.runScreening(SourceRecovery) {
		return []string{PhaseScreening.String()}
	}
	return nil
}

// recoverBatches estimates from elapsed window time which batch slot the
// schedule would be serving now, then drives that slot and every later one,
// skipping slots whose artifact is already complete for today. Earlier slots
// are left alone: their market moment has passed and a late artifact would
// only feed the trading engine stale candidates.
func (c *SchedulerCore) recoverBatches(now time.Time) []string {
	batchCount := c.collab.Batches.BatchCount()
	elapsed := now.Hour()*60 + now.Minute() - c.cfg.BatchStart.MinuteOfDay()
	if elapsed < 0 {
		return nil
	}
	estimate := elapsed / c.cfg.BatchIntervalMinutes
	if estimate >= batchCount {
		return nil
	}

	var executed []string
	for batchID := estimate; batchID < batchCount; batchID++ {
		complete, err := c.collab.Batches.IsBatchComplete(batchID, now)
		if err != nil {
			log.Printf("Error checking batch %d completion: %v", batchID, err)
			continue
		}
		if complete {
			continue
		}
		if c.runBatchSelection(batchID, SourceRecovery) {
			executed = append(executed, fmt.Sprintf("batch_%02d", batchID))
		}
	}
	return executed
}

// recoverTrading starts the execution engine if the trading window is open
// and the engine is idle.
func (c *SchedulerCore) recoverTrading() []string {
	if c.collab.Trading.IsRunning() {
		return nil
	}
	if c.runTradingStart(SourceRecovery) {
		return []string{PhaseTradingStart.String()}
	}
	return nil
}
