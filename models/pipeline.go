package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ScreeningRun records one completed screening pass. This is the
// authoritative artifact recovery consults to decide whether screening
// already happened today.
type ScreeningRun struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TargetDate     time.Time `json:"target_date" gorm:"index;not null"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	CandidateCount int       `json:"candidate_count"`
	Status         string    `json:"status" gorm:"size:20;default:completed"`
}

// ScreeningResult is one candidate produced by a screening run.
type ScreeningResult struct {
	ID     uint            `json:"id" gorm:"primaryKey"`
	RunID  uint            `json:"run_id" gorm:"index;not null"`
	Symbol string          `json:"symbol" gorm:"size:10;index;not null"`
	Rank   int             `json:"rank"`
	Score  decimal.Decimal `json:"score" gorm:"type:decimal(10,4)"`
	Price  decimal.Decimal `json:"price" gorm:"type:decimal(15,2)"`
	Volume int64           `json:"volume"`
}

// Trade is an order created by the execution engine during the trading
// window.
type Trade struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Symbol      string          `json:"symbol" gorm:"size:10;index;not null"`
	BatchID     int             `json:"batch_id" gorm:"index"`
	Type        string          `json:"type" gorm:"size:4;not null"` // BUY or SELL
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(15,2)"`
	Commission  decimal.Decimal `json:"commission" gorm:"type:decimal(15,2)"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(18,2)"`
	Status      string          `json:"status" gorm:"size:20;default:pending"`
	CreatedAt   time.Time       `json:"created_at"`
	ClosedAt    *time.Time      `json:"closed_at"`
}

// DailySummary aggregates one trading day for the downstream sync.
type DailySummary struct {
	Date           string          `json:"date" bson:"date"`
	ScreeningRunID uint            `json:"screening_run_id" bson:"screening_run_id"`
	CandidateCount int             `json:"candidate_count" bson:"candidate_count"`
	BatchesWritten int             `json:"batches_written" bson:"batches_written"`
	TradeCount     int             `json:"trade_count" bson:"trade_count"`
	GrossAmount    decimal.Decimal `json:"gross_amount" bson:"-"`
	GrossAmountStr string          `json:"-" bson:"gross_amount"`
	GeneratedAt    time.Time       `json:"generated_at" bson:"generated_at"`
}

// MigratePipelineModels migrates all pipeline business models.
func MigratePipelineModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&ScreeningRun{},
		&ScreeningResult{},
		&Trade{},
	)
}
