package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// MonitoringService runs the periodic system health check the job table
// invokes. It is a collaborator of the scheduler, not part of the scheduling
// algorithm.
type MonitoringService struct {
	db      *gorm.DB
	dataDir string
}

// NewMonitoringService creates the monitoring service.
func NewMonitoringService(db *gorm.DB, dataDir string) *MonitoringService {
	return &MonitoringService{db: db, dataDir: dataDir}
}

// HealthCheck verifies the database connection and data directory. It
// reports findings rather than erroring; the scheduler turns a false result
// into a high-priority notification.
func (m *MonitoringService) HealthCheck(ctx context.Context) (bool, map[string]interface{}) {
	details := map[string]interface{}{
		"checked_at": time.Now().Format(time.RFC3339),
	}
	healthy := true

	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			details["database"] = fmt.Sprintf("unavailable: %v", err)
			healthy = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			details["database"] = fmt.Sprintf("ping failed: %v", err)
			healthy = false
		} else {
			details["database"] = "ok"
		}
	} else {
		details["database"] = "not configured"
		healthy = false
	}

	if err := m.checkDataDirWritable(); err != nil {
		details["data_dir"] = fmt.Sprintf("not writable: %v", err)
		healthy = false
	} else {
		details["data_dir"] = "ok"
	}

	return healthy, details
}

// checkDataDirWritable verifies the pipeline can still write artifacts.
func (m *MonitoringService) checkDataDirWritable() error {
	probe := filepath.Join(m.dataDir, ".health_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
