package screening

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go_pipeline_project/models"
	"go_pipeline_project/services"
	"go_pipeline_project/services/datafetcher"
)

// MaxCandidates caps how many instruments one screening run keeps.
const MaxCandidates = 90

// Screener runs the morning market screen: score the active universe and
// persist the day's candidate list. The ScreeningRun row it writes is the
// authoritative artifact recovery checks; the JSON file is the freshness
// fallback.
type Screener struct {
	db         *gorm.DB
	quotes     datafetcher.QuoteProvider
	resultFile string
}

// NewScreener creates the screening engine.
func NewScreener(db *gorm.DB, quotes datafetcher.QuoteProvider, resultFile string) *Screener {
	return &Screener{
		db:         db,
		quotes:     quotes,
		resultFile: resultFile,
	}
}

// scored pairs a stock with its quote-derived score.
type scored struct {
	stock models.Stock
	quote *datafetcher.Quote
	score decimal.Decimal
}

// Run screens the active universe for the target date. Returns success and
// details the scheduler turns into a notification.
func (s *Screener) Run(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	started := time.Now()

	var stocks []models.Stock
	if err := s.db.Where("status = ?", "active").Find(&stocks).Error; err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}
	if len(stocks) == 0 {
		return false, map[string]interface{}{"error": "screening universe is empty"}
	}

	candidates := make([]scored, 0, len(stocks))
	fetchErrors := 0
	for _, stock := range stocks {
		quote, err := s.quotes.FetchQuote(ctx, stock.Symbol)
		if err != nil {
			log.Printf("Error fetching quote for %s: %v", stock.Symbol, err)
			fetchErrors++
			continue
		}
		candidates = append(candidates, scored{
			stock: stock,
			quote: quote,
			score: scoreQuote(quote),
		})
	}
	if len(candidates) == 0 {
		return false, map[string]interface{}{
			"error":        "no quotes available",
			"fetch_errors": fetchErrors,
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score.GreaterThan(candidates[j].score)
	})
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	run := models.ScreeningRun{
		TargetDate:     startOfDay(date),
		StartedAt:      started,
		FinishedAt:     time.Now(),
		CandidateCount: len(candidates),
		Status:         "completed",
	}
	if err := s.db.Create(&run).Error; err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	results := make([]models.ScreeningResult, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, models.ScreeningResult{
			RunID:  run.ID,
			Symbol: c.stock.Symbol,
			Rank:   i + 1,
			Score:  c.score,
			Price:  c.quote.Price,
			Volume: c.quote.Volume,
		})
	}
	if err := s.db.Create(&results).Error; err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	if err := s.writeResultFile(&run, results); err != nil {
		// The DB row is authoritative; a missing file only weakens the
		// recovery fallback path.
		log.Printf("Error writing screening result file: %v", err)
	}

	return true, map[string]interface{}{
		"run_id":       run.ID,
		"candidates":   len(results),
		"fetch_errors": fetchErrors,
	}
}

// HasRunForDate reports whether a completed screening run exists for the
// date. RecoveryManager prefers this over the file check.
func (s *Screener) HasRunForDate(date time.Time) (bool, error) {
	dayStart := startOfDay(date)
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	err := s.db.Model(&models.ScreeningRun{}).
		Where("target_date >= ? AND target_date < ? AND status = ?", dayStart, dayEnd, "completed").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResultsForDate returns the day's candidates ordered by rank.
func (s *Screener) ResultsForDate(date time.Time) ([]models.ScreeningResult, error) {
	dayStart := startOfDay(date)
	dayEnd := dayStart.Add(24 * time.Hour)

	var run models.ScreeningRun
	err := s.db.Where("target_date >= ? AND target_date < ? AND status = ?", dayStart, dayEnd, "completed").
		Order("id DESC").First(&run).Error
	if err != nil {
		return nil, err
	}

	var results []models.ScreeningResult
	if err := s.db.Where("run_id = ?", run.ID).Order("rank ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// writeResultFile publishes the screening summary artifact atomically.
func (s *Screener) writeResultFile(run *models.ScreeningRun, results []models.ScreeningResult) error {
	symbols := make([]string, 0, len(results))
	for _, r := range results {
		symbols = append(symbols, r.Symbol)
	}
	return services.WriteJSONAtomic(s.resultFile, map[string]interface{}{
		"run_id":      run.ID,
		"target_date": run.TargetDate.Format("2006-01-02"),
		"count":       len(results),
		"symbols":     symbols,
	})
}

// scoreQuote ranks an instrument by momentum weighted with liquidity.
func scoreQuote(q *datafetcher.Quote) decimal.Decimal {
	if q.Volume <= 0 {
		return decimal.Zero
	}
	liquidity := decimal.NewFromInt(q.Volume).Div(decimal.NewFromInt(100000))
	if liquidity.GreaterThan(decimal.NewFromInt(10)) {
		liquidity = decimal.NewFromInt(10)
	}
	return q.ChangePercent.Mul(decimal.NewFromInt(10)).Add(liquidity)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
