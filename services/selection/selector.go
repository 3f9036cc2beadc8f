package selection

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"go_pipeline_project/models"
	"go_pipeline_project/services"
	"go_pipeline_project/services/datafetcher"
)

// QuoteRefreshRate limits outbound quote refreshes so a batch's external
// calls stay spread across its slot instead of bursting at the slot start.
const QuoteRefreshRate = rate.Limit(2) // requests per second

// CandidateSource supplies the day's ranked screening results.
type CandidateSource interface {
	ResultsForDate(date time.Time) ([]models.ScreeningResult, error)
}

// Selector builds one candidate batch per schedule slot. Each batch is a
// contiguous rank slice of the day's screening results with refreshed
// quotes, published atomically as the batch artifact.
type Selector struct {
	candidates CandidateSource
	tracker    *services.BatchStateTracker
	quotes     datafetcher.QuoteProvider
	limiter    *rate.Limiter
}

// NewSelector creates the selection engine.
func NewSelector(candidates CandidateSource, tracker *services.BatchStateTracker, quotes datafetcher.QuoteProvider) *Selector {
	return &Selector{
		candidates: candidates,
		tracker:    tracker,
		quotes:     quotes,
		limiter:    rate.NewLimiter(QuoteRefreshRate, 1),
	}
}

// SelectBatch produces the artifact for one batch slot. Re-invoking for an
// already complete batch is a no-op reported as success, which is what makes
// recovery replays safe.
func (s *Selector) SelectBatch(ctx context.Context, batchID int, date time.Time) (bool, map[string]interface{}) {
	complete, err := s.tracker.IsBatchComplete(batchID, date)
	if err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}
	if complete {
		return true, map[string]interface{}{"batch_id": batchID, "already_complete": true}
	}

	results, err := s.candidates.ResultsForDate(date)
	if err != nil {
		return false, map[string]interface{}{"batch_id": batchID, "error": err.Error()}
	}

	slice := batchSlice(results, batchID, s.tracker.BatchCount())
	artifact := &services.BatchArtifact{
		BatchID:     batchID,
		TargetDate:  date.Format("2006-01-02"),
		GeneratedAt: time.Now(),
		Candidates:  make([]services.BatchCandidate, 0, len(slice)),
	}

	refreshed := 0
	for _, result := range slice {
		price := result.Price
		volume := result.Volume
		if err := s.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-batch: publish nothing, the slot
			// stays incomplete and recovery will retry it.
			return false, map[string]interface{}{"batch_id": batchID, "error": err.Error()}
		}
		if quote, err := s.quotes.FetchQuote(ctx, result.Symbol); err != nil {
			log.Printf("Error refreshing quote for %s, keeping screening price: %v", result.Symbol, err)
		} else {
			price = quote.Price
			volume = quote.Volume
			refreshed++
		}
		artifact.Candidates = append(artifact.Candidates, services.BatchCandidate{
			Symbol: result.Symbol,
			Rank:   result.Rank,
			Score:  result.Score.StringFixed(4),
			Price:  price.StringFixed(2),
			Volume: volume,
		})
	}

	if err := services.WriteBatchArtifact(s.tracker.BatchFilePath(batchID), artifact); err != nil {
		return false, map[string]interface{}{"batch_id": batchID, "error": err.Error()}
	}

	return true, map[string]interface{}{
		"batch_id":   batchID,
		"candidates": len(artifact.Candidates),
		"refreshed":  refreshed,
	}
}

// batchSlice returns the contiguous rank slice owned by a batch slot.
// Empty when the screening produced fewer candidates than the slot's offset.
func batchSlice(results []models.ScreeningResult, batchID, batchCount int) []models.ScreeningResult {
	if len(results) == 0 || batchCount <= 0 {
		return nil
	}
	size := (len(results) + batchCount - 1) / batchCount
	start := batchID * size
	if start >= len(results) {
		return nil
	}
	end := start + size
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
