package scheduler

import (
	"time"

	"go_pipeline_project/config"
)

// Phase enumerates the stages of the daily pipeline. The declaration order
// is the causal order for a trading day: each phase's artifacts may depend
// on every phase before it.
type Phase int

const (
	PhaseCacheClear Phase = iota
	PhaseScreening
	PhaseBatchSelection
	PhaseTradingStart
	PhaseTradingStop
	PhaseMarketClose
	PhaseAISync
	PhaseFundamentals
	PhaseMaintenance
	PhaseHealthCheck
)

// String returns the phase name used in job IDs, journal rows and events.
func (p Phase) String() string {
	switch p {
	case PhaseCacheClear:
		return "cache_clear"
	case PhaseScreening:
		return "screening"
	case PhaseBatchSelection:
		return "batch_selection"
	case PhaseTradingStart:
		return "trading_start"
	case PhaseTradingStop:
		return "trading_stop"
	case PhaseMarketClose:
		return "market_close"
	case PhaseAISync:
		return "ai_sync"
	case PhaseFundamentals:
		return "fundamentals_pull"
	case PhaseMaintenance:
		return "weekly_maintenance"
	case PhaseHealthCheck:
		return "health_check"
	default:
		return "unknown"
	}
}

// PhasesDueBefore returns which recoverable phases should already have run
// by wall-clock time now, in causal order. Weekends map to the empty set.
// This bounds what a recovery pass will even consider; it says nothing about
// whether a phase verifiably completed.
func PhasesDueBefore(cfg *config.Config, now time.Time) []Phase {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return nil
	}

	minute := now.Hour()*60 + now.Minute()
	windowEnd := cfg.BatchWindowEnd().MinuteOfDay()

	var due []Phase
	if minute >= cfg.ScreeningTime.MinuteOfDay() {
		due = append(due, PhaseScreening)
	}
	if minute >= cfg.BatchStart.MinuteOfDay() && minute < windowEnd {
		due = append(due, PhaseBatchSelection)
	}
	if minute >= windowEnd && minute < cfg.TradingStopTime.MinuteOfDay() {
		due = append(due, PhaseTradingStart)
	}
	if minute >= cfg.MarketCloseTime.MinuteOfDay() {
		due = append(due, PhaseMarketClose)
	}
	if minute >= cfg.AISyncTime.MinuteOfDay() {
		due = append(due, PhaseAISync)
	}
	return due
}
