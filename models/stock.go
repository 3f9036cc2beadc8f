package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is one instrument in the screening universe.
type Stock struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Symbol   string `json:"symbol" gorm:"size:10;uniqueIndex;not null"`
	Name     string `json:"name" gorm:"size:100"`
	Exchange string `json:"exchange" gorm:"size:10"`
	Industry string `json:"industry" gorm:"size:50"`
	Status   string `json:"status" gorm:"size:20;default:active"`

	// Fundamentals, refreshed by the weekly Saturday pull
	MarketCap            decimal.Decimal `json:"market_cap" gorm:"type:decimal(20,2)"`
	PE                   decimal.Decimal `json:"pe" gorm:"type:decimal(10,2)"`
	EPS                  decimal.Decimal `json:"eps" gorm:"type:decimal(10,2)"`
	FundamentalsSyncedAt *time.Time      `json:"fundamentals_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
