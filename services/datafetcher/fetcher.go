package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go_pipeline_project/models"
)

// Default quote API base (VNDirect-compatible endpoint layout).
const DefaultQuoteAPIBase = "https://finfo-api.vndirect.com.vn/v4"

// Quote is one realtime quote snapshot.
type Quote struct {
	Symbol        string
	Price         decimal.Decimal
	Volume        int64
	ChangePercent decimal.Decimal
}

// QuoteProvider fetches realtime quotes for the screening and selection
// engines.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}

// DataFetcher handles fetching market data from the exchange data API.
type DataFetcher struct {
	db         *gorm.DB
	apiBase    string
	httpClient *http.Client
}

// NewDataFetcher creates a new data fetcher instance.
func NewDataFetcher(db *gorm.DB, apiBase string) *DataFetcher {
	if apiBase == "" {
		apiBase = DefaultQuoteAPIBase
	}
	return &DataFetcher{
		db:      db,
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// quoteResponse mirrors the data API's stock price payload.
type quoteResponse struct {
	Data []struct {
		Code      string  `json:"code"`
		Close     float64 `json:"close"`
		NmVolume  int64   `json:"nmVolume"`
		PctChange float64 `json:"pctChange"`
	} `json:"data"`
}

// ratioResponse mirrors the data API's fundamentals payload.
type ratioResponse struct {
	Data []struct {
		Code      string  `json:"code"`
		MarketCap float64 `json:"marketCap"`
		PE        float64 `json:"pe"`
		EPS       float64 `json:"eps"`
	} `json:"data"`
}

// FetchQuote fetches the latest quote for a symbol.
func (df *DataFetcher) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	url := fmt.Sprintf("%s/stock_prices?q=code:%s&size=1&sort=date", df.apiBase, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := df.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned %d for %s", resp.StatusCode, symbol)
	}

	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	data := payload.Data[0]
	return &Quote{
		Symbol:        symbol,
		Price:         decimal.NewFromFloat(data.Close),
		Volume:        data.NmVolume,
		ChangePercent: decimal.NewFromFloat(data.PctChange),
	}, nil
}

// SeedStockList seeds the screening universe when the table is empty.
// In production the universe is managed through the data API sync; the seed
// keeps a fresh deployment functional.
func (df *DataFetcher) SeedStockList() error {
	var count int64
	if err := df.db.Model(&models.Stock{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stocks := []models.Stock{
		{Symbol: "VNM", Name: "Vinamilk", Exchange: "HOSE", Industry: "Consumer Goods", Status: "active"},
		{Symbol: "VIC", Name: "Vingroup", Exchange: "HOSE", Industry: "Real Estate", Status: "active"},
		{Symbol: "HPG", Name: "Hoa Phat Group", Exchange: "HOSE", Industry: "Steel", Status: "active"},
		{Symbol: "VHM", Name: "Vinhomes", Exchange: "HOSE", Industry: "Real Estate", Status: "active"},
		{Symbol: "VCB", Name: "Vietcombank", Exchange: "HOSE", Industry: "Banking", Status: "active"},
		{Symbol: "TCB", Name: "Techcombank", Exchange: "HOSE", Industry: "Banking", Status: "active"},
		{Symbol: "MSN", Name: "Masan Group", Exchange: "HOSE", Industry: "Consumer Goods", Status: "active"},
		{Symbol: "FPT", Name: "FPT Corporation", Exchange: "HOSE", Industry: "Technology", Status: "active"},
		{Symbol: "ACB", Name: "Asia Commercial Bank", Exchange: "HOSE", Industry: "Banking", Status: "active"},
		{Symbol: "GAS", Name: "PetroVietnam Gas", Exchange: "HOSE", Industry: "Oil & Gas", Status: "active"},
	}

	for _, stock := range stocks {
		if err := df.db.Create(&stock).Error; err != nil {
			return fmt.Errorf("failed to seed stock %s: %w", stock.Symbol, err)
		}
	}

	log.Printf("Seeded %d stocks into screening universe", len(stocks))
	return nil
}

// RunFundamentalsPull refreshes fundamentals for every active stock. Invoked
// by the Saturday job; per-symbol failures are logged and skipped.
func (df *DataFetcher) RunFundamentalsPull(ctx context.Context) (bool, map[string]interface{}) {
	var stocks []models.Stock
	if err := df.db.Where("status = ?", "active").Find(&stocks).Error; err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	updated := 0
	failed := 0
	for _, stock := range stocks {
		if err := df.fetchFundamentals(ctx, &stock); err != nil {
			log.Printf("Error fetching fundamentals for %s: %v", stock.Symbol, err)
			failed++
			continue
		}
		now := time.Now()
		stock.FundamentalsSyncedAt = &now
		if err := df.db.Save(&stock).Error; err != nil {
			log.Printf("Error saving fundamentals for %s: %v", stock.Symbol, err)
			failed++
			continue
		}
		updated++
	}

	log.Printf("Fundamentals pull completed: updated=%d failed=%d", updated, failed)
	return updated > 0 || len(stocks) == 0, map[string]interface{}{
		"updated": updated,
		"failed":  failed,
	}
}

// fetchFundamentals fills the fundamentals fields of a stock in place.
func (df *DataFetcher) fetchFundamentals(ctx context.Context, stock *models.Stock) error {
	url := fmt.Sprintf("%s/ratios?q=code:%s&size=1", df.apiBase, stock.Symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := df.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ratios API returned %d", resp.StatusCode)
	}

	var payload ratioResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	if len(payload.Data) == 0 {
		return fmt.Errorf("no ratio data")
	}

	data := payload.Data[0]
	stock.MarketCap = decimal.NewFromFloat(data.MarketCap)
	stock.PE = decimal.NewFromFloat(data.PE)
	stock.EPS = decimal.NewFromFloat(data.EPS)
	return nil
}
