package scheduler

import (
	"sync"
	"time"
)

// RuntimeState tracks what the pipeline has done since process start. It is
// deliberately volatile: on restart the recovery pass rebuilds the picture
// from durable artifacts, so persisting any of this would only let stale
// state contradict the filesystem and database.
type RuntimeState struct {
	mu sync.Mutex

	running   bool
	startedAt time.Time

	lastScreeningAt    time.Time
	lastBatchSyncAt    time.Time
	lastBatchID        int
	lastTradingStartAt time.Time
	lastTradingStopAt  time.Time
	lastMarketCloseAt  time.Time
	lastAISyncAt       time.Time
	lastHealthCheckAt  time.Time
}

// StateSnapshot is the status-API view of the runtime state.
type StateSnapshot struct {
	Running            bool      `json:"running"`
	StartedAt          time.Time `json:"started_at,omitempty"`
	LastScreeningAt    time.Time `json:"last_screening_at,omitempty"`
	LastBatchSyncAt    time.Time `json:"last_batch_sync_at,omitempty"`
	LastBatchID        int       `json:"last_batch_id"`
	LastTradingStartAt time.Time `json:"last_trading_start_at,omitempty"`
	LastTradingStopAt  time.Time `json:"last_trading_stop_at,omitempty"`
	LastMarketCloseAt  time.Time `json:"last_market_close_at,omitempty"`
	LastAISyncAt       time.Time `json:"last_ai_sync_at,omitempty"`
	LastHealthCheckAt  time.Time `json:"last_health_check_at,omitempty"`
}

// NewRuntimeState creates an empty runtime state.
func NewRuntimeState() *RuntimeState {
	return &RuntimeState{lastBatchID: -1}
}

// SetRunning flips the scheduler running flag.
func (s *RuntimeState) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	if running {
		s.startedAt = time.Now()
	}
}

// IsRunning reports whether the scheduler loop is active.
func (s *RuntimeState) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// MarkPhase records a successful phase execution timestamp.
func (s *RuntimeState) MarkPhase(phase Phase, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch phase {
	case PhaseScreening:
		s.lastScreeningAt = at
	case PhaseTradingStart:
		s.lastTradingStartAt = at
	case PhaseTradingStop:
		s.lastTradingStopAt = at
	case PhaseMarketClose:
		s.lastMarketCloseAt = at
	case PhaseAISync:
		s.lastAISyncAt = at
	case PhaseHealthCheck:
		s.lastHealthCheckAt = at
	}
}

// MarkBatch records a successful batch selection.
func (s *RuntimeState) MarkBatch(batchID int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBatchSyncAt = at
	s.lastBatchID = batchID
}

// Snapshot returns a copy of the state for the status API.
func (s *RuntimeState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Running:            s.running,
		StartedAt:          s.startedAt,
		LastScreeningAt:    s.lastScreeningAt,
		LastBatchSyncAt:    s.lastBatchSyncAt,
		LastBatchID:        s.lastBatchID,
		LastTradingStartAt: s.lastTradingStartAt,
		LastTradingStopAt:  s.lastTradingStopAt,
		LastMarketCloseAt:  s.lastMarketCloseAt,
		LastAISyncAt:       s.lastAISyncAt,
		LastHealthCheckAt:  s.lastHealthCheckAt,
	}
}
