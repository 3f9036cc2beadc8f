package trading

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go_pipeline_project/models"
	"go_pipeline_project/services"
)

// Engine tuning constants
const (
	CycleInterval   = 1 * time.Minute
	CommissionRate  = 0.0015
	DefaultQuantity = 100
	MinEntryScore   = "1.0"
)

// Engine is the execution engine for the trading window. It consumes the
// batch artifacts written by the selection engine and places orders for
// candidates that have not been traded today.
//
// Start is idempotent from the scheduler's point of view: a second start
// while already running is rejected with false, never an error.
type Engine struct {
	db      *gorm.DB
	tracker *services.BatchStateTracker

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewEngine creates the execution engine.
func NewEngine(db *gorm.DB, tracker *services.BatchStateTracker) *Engine {
	return &Engine{
		db:      db,
		tracker: tracker,
	}
}

// Start launches the trading cycle loop. Returns false when the engine is
// already running.
func (e *Engine) Start(ctx context.Context) (bool, map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		return false, map[string]interface{}{"reason": "already running"}
	}

	e.isRunning = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	go e.run(e.stopChan, e.doneChan)

	log.Println("Trading engine started")
	return true, map[string]interface{}{"started_at": time.Now().Format(time.RFC3339)}
}

// Stop halts the trading cycle loop. Stopping an idle engine is a no-op
// reported as success, since the desired state already holds.
func (e *Engine) Stop(ctx context.Context) (bool, map[string]interface{}) {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return true, map[string]interface{}{"was_running": false}
	}
	close(e.stopChan)
	done := e.doneChan
	e.isRunning = false
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("Timed out waiting for trading cycle to finish")
	}

	log.Println("Trading engine stopped")
	return true, map[string]interface{}{"was_running": true}
}

// IsRunning reports whether the cycle loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// run is the trading cycle loop.
func (e *Engine) run(stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	ticker := time.NewTicker(CycleInterval)
	defer ticker.Stop()

	// First cycle immediately so a late start still trades.
	e.executeCycle()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			e.executeCycle()
		}
	}
}

// executeCycle walks today's completed batch artifacts and places orders
// for untraded candidates above the entry threshold.
func (e *Engine) executeCycle() {
	today := time.Now()
	minScore, _ := decimal.NewFromString(MinEntryScore)

	completed, _ := e.tracker.GetCompletionStatus(today)
	if len(completed) == 0 {
		return
	}

	placed := 0
	for _, batchID := range completed {
		artifact, err := services.ReadBatchArtifact(e.tracker.BatchFilePath(batchID))
		if err != nil {
			log.Printf("Error reading batch %d artifact: %v", batchID, err)
			continue
		}
		for _, candidate := range artifact.Candidates {
			score, err := decimal.NewFromString(candidate.Score)
			if err != nil || score.LessThan(minScore) {
				continue
			}
			if e.tradedToday(candidate.Symbol, today) {
				continue
			}
			if err := e.placeBuyOrder(batchID, candidate); err != nil {
				log.Printf("Error placing order for %s: %v", candidate.Symbol, err)
				continue
			}
			placed++
		}
	}

	if placed > 0 {
		log.Printf("Trading cycle placed %d orders", placed)
	}
}

// tradedToday reports whether the symbol already has a trade for the day.
func (e *Engine) tradedToday(symbol string, day time.Time) bool {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	var count int64
	if err := e.db.Model(&models.Trade{}).
		Where("symbol = ? AND created_at >= ?", symbol, dayStart).
		Count(&count).Error; err != nil {
		log.Printf("Error checking trades for %s: %v", symbol, err)
		// Err on the safe side: skip rather than double-order.
		return true
	}
	return count > 0
}

// placeBuyOrder creates a pending limit order for a candidate. In production
// this is where the broker API call goes.
func (e *Engine) placeBuyOrder(batchID int, candidate services.BatchCandidate) error {
	price, err := decimal.NewFromString(candidate.Price)
	if err != nil {
		return err
	}

	quantity := int64(DefaultQuantity)
	gross := price.Mul(decimal.NewFromInt(quantity))
	commission := gross.Mul(decimal.NewFromFloat(CommissionRate))

	trade := models.Trade{
		Symbol:      candidate.Symbol,
		BatchID:     batchID,
		Type:        "BUY",
		Quantity:    quantity,
		Price:       price,
		Commission:  commission,
		TotalAmount: gross.Add(commission),
		Status:      "pending",
	}
	if err := e.db.Create(&trade).Error; err != nil {
		return err
	}

	log.Printf("Buy order created for %s: %d shares at %s (batch %d)",
		candidate.Symbol, quantity, price.StringFixed(2), batchID)
	return nil
}
