package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"

	"go_pipeline_project/models"
)

// MongoDB database and collection names
const (
	MongoDBName            = "pipeline_ai"
	MongoSummaryCollection = "daily_summaries"
	MongoConnectTimeout    = 10 * time.Second
	MongoOperationTimeout  = 15 * time.Second
)

// AISyncService builds the end-of-day performance summary and pushes it to
// MongoDB for the downstream analysis layer. When MongoDB is not configured
// the summary is still computed and logged, and the sync reports success
// with a skipped marker so an intentionally disabled sink does not page the
// operator every evening.
type AISyncService struct {
	db      *gorm.DB
	tracker *BatchStateTracker

	uri         string
	client      *mongo.Client
	mu          sync.Mutex
	isConnected bool
}

// NewAISyncService creates the sync service. An empty URI disables the
// MongoDB sink.
func NewAISyncService(db *gorm.DB, tracker *BatchStateTracker, mongoURI string) *AISyncService {
	return &AISyncService{
		db:      db,
		tracker: tracker,
		uri:     mongoURI,
	}
}

// connect establishes the MongoDB connection lazily, once.
func (s *AISyncService) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, MongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return fmt.Errorf("MongoDB ping failed: %w", err)
	}

	s.client = client
	s.isConnected = true
	log.Println("MongoDB connection established for AI sync")
	return nil
}

// Close disconnects from MongoDB.
func (s *AISyncService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(ctx)
		s.isConnected = false
	}
}

// Run computes the daily summary for the date and syncs it downstream.
func (s *AISyncService) Run(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	summary, err := s.buildSummary(date)
	if err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	log.Printf("Daily summary for %s: candidates=%d batches=%d trades=%d gross=%s",
		summary.Date, summary.CandidateCount, summary.BatchesWritten,
		summary.TradeCount, summary.GrossAmount.StringFixed(2))

	if s.uri == "" {
		log.Println("MONGODB_URI not set, skipping downstream sync")
		return true, map[string]interface{}{"skipped": true, "date": summary.Date}
	}

	if err := s.connect(ctx); err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	opCtx, cancel := context.WithTimeout(ctx, MongoOperationTimeout)
	defer cancel()

	summary.GrossAmountStr = summary.GrossAmount.StringFixed(2)
	coll := s.client.Database(MongoDBName).Collection(MongoSummaryCollection)
	_, err = coll.ReplaceOne(opCtx,
		bson.M{"date": summary.Date},
		summary,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return false, map[string]interface{}{"error": err.Error()}
	}

	return true, map[string]interface{}{
		"date":        summary.Date,
		"trade_count": summary.TradeCount,
	}
}

// buildSummary aggregates one trading day from the business store and the
// batch artifacts.
func (s *AISyncService) buildSummary(date time.Time) (*models.DailySummary, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := &models.DailySummary{
		Date:        dayStart.Format("2006-01-02"),
		GeneratedAt: time.Now(),
	}

	var run models.ScreeningRun
	err := s.db.Where("target_date >= ? AND target_date < ?", dayStart, dayEnd).
		Order("id DESC").First(&run).Error
	if err == nil {
		summary.ScreeningRunID = run.ID
		summary.CandidateCount = run.CandidateCount
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to load screening run: %w", err)
	}

	completed, _ := s.tracker.GetCompletionStatus(dayStart)
	summary.BatchesWritten = len(completed)

	var trades []models.Trade
	if err := s.db.Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	summary.TradeCount = len(trades)
	for _, trade := range trades {
		summary.GrossAmount = summary.GrossAmount.Add(trade.TotalAmount)
	}

	return summary, nil
}
