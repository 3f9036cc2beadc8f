package services

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"go_pipeline_project/models"
)

// Retention windows for weekly maintenance
const (
	ScreeningRetentionDays = 90
	TradeRetentionDays     = 365
	JournalRetentionDays   = 30
)

// MaintenanceService performs the cleanup phases of the pipeline: the
// morning cache clear, the market-close close-out and the Sunday
// maintenance pass.
type MaintenanceService struct {
	db       *gorm.DB
	journal  *JournalService
	batchDir string
	files    []string // standalone artifacts cleared each morning
}

// NewMaintenanceService creates the maintenance service. journal may be nil
// when the local journal is unavailable.
func NewMaintenanceService(db *gorm.DB, journal *JournalService, batchDir string, files ...string) *MaintenanceService {
	return &MaintenanceService{
		db:       db,
		journal:  journal,
		batchDir: batchDir,
		files:    files,
	}
}

// ClearCache removes the previous day's pipeline artifacts so today's run
// starts from a clean slate. Only files modified before today are removed;
// artifacts already produced today (a same-day restart) survive.
func (m *MaintenanceService) ClearCache(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	removed := 0

	entries, err := os.ReadDir(m.batchDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(m.batchDir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(dayStart) {
				if err := os.Remove(path); err != nil {
					log.Printf("Error removing stale artifact %s: %v", path, err)
					continue
				}
				removed++
			}
		}
	}

	for _, path := range m.files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(dayStart) {
			if err := os.Remove(path); err != nil {
				log.Printf("Error removing stale artifact %s: %v", path, err)
				continue
			}
			removed++
		}
	}

	log.Printf("Cache clear removed %d stale artifacts", removed)
	return true, map[string]interface{}{"removed": removed}
}

// MarketClose performs the close-out cleanup: any trade still pending when
// the market closes is expired.
func (m *MaintenanceService) MarketClose(ctx context.Context, date time.Time) (bool, map[string]interface{}) {
	now := time.Now()
	result := m.db.WithContext(ctx).Model(&models.Trade{}).
		Where("status = ?", "pending").
		Updates(map[string]interface{}{
			"status":    "expired",
			"closed_at": now,
		})
	if result.Error != nil {
		return false, map[string]interface{}{"error": result.Error.Error()}
	}

	log.Printf("Market close expired %d pending trades", result.RowsAffected)
	return true, map[string]interface{}{"expired_trades": result.RowsAffected}
}

// RunWeeklyMaintenance prunes aged rows from the business store and the
// journal.
func (m *MaintenanceService) RunWeeklyMaintenance(ctx context.Context) (bool, map[string]interface{}) {
	details := map[string]interface{}{}
	ok := true

	screeningCutoff := time.Now().AddDate(0, 0, -ScreeningRetentionDays)
	var runIDs []uint
	if err := m.db.WithContext(ctx).Model(&models.ScreeningRun{}).
		Where("target_date < ?", screeningCutoff).
		Pluck("id", &runIDs).Error; err != nil {
		log.Printf("Error collecting old screening runs: %v", err)
		ok = false
	} else if len(runIDs) > 0 {
		if err := m.db.WithContext(ctx).Where("run_id IN ?", runIDs).
			Delete(&models.ScreeningResult{}).Error; err != nil {
			log.Printf("Error pruning screening results: %v", err)
			ok = false
		}
		if err := m.db.WithContext(ctx).Where("id IN ?", runIDs).
			Delete(&models.ScreeningRun{}).Error; err != nil {
			log.Printf("Error pruning screening runs: %v", err)
			ok = false
		}
		details["screening_runs_pruned"] = len(runIDs)
	}

	tradeCutoff := time.Now().AddDate(0, 0, -TradeRetentionDays)
	result := m.db.WithContext(ctx).Where("created_at < ?", tradeCutoff).
		Delete(&models.Trade{})
	if result.Error != nil {
		log.Printf("Error pruning trades: %v", result.Error)
		ok = false
	} else {
		details["trades_pruned"] = result.RowsAffected
	}

	if m.journal != nil {
		pruned, err := m.journal.PruneBefore(time.Now().AddDate(0, 0, -JournalRetentionDays))
		if err != nil {
			log.Printf("Error pruning journal: %v", err)
		} else {
			details["journal_pruned"] = pruned
		}
	}

	log.Println("Weekly maintenance completed")
	return ok, details
}
