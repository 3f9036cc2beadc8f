package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConfigError reports an invalid schedule parameter. It is the only error
// allowed to abort process start; everything after the scheduler begins
// running is recovered locally.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// TimeOfDay is a wall-clock time within a day, minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MinuteOfDay returns minutes since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is strictly earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.MinuteOfDay() < u.MinuteOfDay()
}

// Config holds all schedule parameters and file paths for the daily pipeline.
// It is a value object: validated once at load, never mutated afterwards.
type Config struct {
	Port        string
	Environment string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Downstream sync
	MongoURI string

	// Auth
	JWTSecret string

	// Notification
	NotifyWebhookURL string
	NotifyEnabled    bool

	// Batch selection window
	BatchCount           int
	BatchIntervalMinutes int
	BatchStart           TimeOfDay

	// Phase times
	CacheClearTime   TimeOfDay
	ScreeningTime    TimeOfDay
	TradingStartTime TimeOfDay
	TradingStopTime  TimeOfDay
	MarketCloseTime  TimeOfDay
	AISyncTime       TimeOfDay
	FundamentalsTime TimeOfDay // Saturday
	MaintenanceTime  TimeOfDay // Sunday
	HealthCheckTime  TimeOfDay

	// Workers used by the selection engine for quote refresh
	WorkerCount int

	// Paths
	DataDir       string
	BatchDir      string
	ScreeningFile string
	JournalDBPath string
}

// LoadConfig loads environment variables and validates the schedule.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "pipeline_db"),

		MongoURI: getEnv("MONGODB_URI", ""),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyEnabled:    getEnvBool("NOTIFY_ENABLED", true),

		BatchCount:           getEnvInt("BATCH_COUNT", 18),
		BatchIntervalMinutes: getEnvInt("BATCH_INTERVAL_MINUTES", 5),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),

		DataDir:       dataDir,
		BatchDir:      getEnv("BATCH_DIR", filepath.Join(dataDir, "batches")),
		ScreeningFile: getEnv("SCREENING_FILE", filepath.Join(dataDir, "screening_result.json")),
		JournalDBPath: getEnv("JOURNAL_DB_PATH", filepath.Join(dataDir, "journal.db")),
	}

	var err error
	if cfg.BatchStart, err = parseTimeOfDay("BATCH_START_TIME", getEnv("BATCH_START_TIME", "08:30")); err != nil {
		return nil, err
	}
	if cfg.CacheClearTime, err = parseTimeOfDay("CACHE_CLEAR_TIME", getEnv("CACHE_CLEAR_TIME", "08:00")); err != nil {
		return nil, err
	}
	if cfg.ScreeningTime, err = parseTimeOfDay("SCREENING_TIME", getEnv("SCREENING_TIME", "08:15")); err != nil {
		return nil, err
	}
	if cfg.TradingStartTime, err = parseTimeOfDay("TRADING_START_TIME", getEnv("TRADING_START_TIME", "10:05")); err != nil {
		return nil, err
	}
	if cfg.TradingStopTime, err = parseTimeOfDay("TRADING_STOP_TIME", getEnv("TRADING_STOP_TIME", "14:45")); err != nil {
		return nil, err
	}
	if cfg.MarketCloseTime, err = parseTimeOfDay("MARKET_CLOSE_TIME", getEnv("MARKET_CLOSE_TIME", "15:15")); err != nil {
		return nil, err
	}
	if cfg.AISyncTime, err = parseTimeOfDay("AI_SYNC_TIME", getEnv("AI_SYNC_TIME", "16:00")); err != nil {
		return nil, err
	}
	if cfg.FundamentalsTime, err = parseTimeOfDay("FUNDAMENTALS_TIME", getEnv("FUNDAMENTALS_TIME", "10:00")); err != nil {
		return nil, err
	}
	if cfg.MaintenanceTime, err = parseTimeOfDay("MAINTENANCE_TIME", getEnv("MAINTENANCE_TIME", "01:00")); err != nil {
		return nil, err
	}
	if cfg.HealthCheckTime, err = parseTimeOfDay("HEALTH_CHECK_TIME", getEnv("HEALTH_CHECK_TIME", "11:30")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all schedule parameters. Invalid combinations fail here, at
// startup, not at schedule-fire time.
func (c *Config) Validate() error {
	if c.BatchCount <= 0 {
		return &ConfigError{Field: "BATCH_COUNT", Reason: fmt.Sprintf("must be positive, got %d", c.BatchCount)}
	}
	if c.BatchIntervalMinutes <= 0 {
		return &ConfigError{Field: "BATCH_INTERVAL_MINUTES", Reason: fmt.Sprintf("must be positive, got %d", c.BatchIntervalMinutes)}
	}
	if c.BatchStart.Hour < 0 || c.BatchStart.Hour > 23 {
		return &ConfigError{Field: "BATCH_START_TIME", Reason: fmt.Sprintf("hour out of range: %d", c.BatchStart.Hour)}
	}
	if c.BatchStart.Minute < 0 || c.BatchStart.Minute > 59 {
		return &ConfigError{Field: "BATCH_START_TIME", Reason: fmt.Sprintf("minute out of range: %d", c.BatchStart.Minute)}
	}
	if c.WorkerCount <= 0 {
		return &ConfigError{Field: "WORKER_COUNT", Reason: fmt.Sprintf("must be positive, got %d", c.WorkerCount)}
	}
	return nil
}

// BatchTimes returns the time-of-day for each batch slot, computed by
// repeated addition of the interval from the window start, rolling over hour
// boundaries.
func (c *Config) BatchTimes() []TimeOfDay {
	times := make([]TimeOfDay, 0, c.BatchCount)
	hour, minute := c.BatchStart.Hour, c.BatchStart.Minute
	for i := 0; i < c.BatchCount; i++ {
		times = append(times, TimeOfDay{Hour: hour, Minute: minute})
		minute += c.BatchIntervalMinutes
		hour = (hour + minute/60) % 24
		minute = minute % 60
	}
	return times
}

// BatchWindowEnd returns the time-of-day at which the batch window closes:
// one interval after the last batch slot.
func (c *Config) BatchWindowEnd() TimeOfDay {
	total := c.BatchStart.MinuteOfDay() + c.BatchCount*c.BatchIntervalMinutes
	return TimeOfDay{Hour: (total / 60) % 24, Minute: total % 60}
}

// EnsureDirectories creates every directory the pipeline owns. Idempotent,
// safe to call on every start.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.BatchDir, filepath.Dir(c.JournalDBPath)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// InitDB initializes the PostgreSQL connection.
func InitDB(cfg *Config) (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s dbname=%s",
		maskHost(cfg.DBHost), cfg.DBPort, cfg.DBName)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=Asia/Ho_Chi_Minh",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	logLevel := logger.Info
	if cfg.Environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Database connection verified successfully")
	return db, nil
}

// parseTimeOfDay parses "HH:MM" into a TimeOfDay.
func parseTimeOfDay(field, value string) (TimeOfDay, error) {
	if len(value) != 5 || value[2] != ':' {
		return TimeOfDay{}, &ConfigError{Field: field, Reason: fmt.Sprintf("expected HH:MM, got %q", value)}
	}
	hour, err := strconv.Atoi(value[:2])
	if err != nil {
		return TimeOfDay{}, &ConfigError{Field: field, Reason: fmt.Sprintf("bad hour in %q", value)}
	}
	minute, err := strconv.Atoi(value[3:])
	if err != nil {
		return TimeOfDay{}, &ConfigError{Field: field, Reason: fmt.Sprintf("bad minute in %q", value)}
	}
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, &ConfigError{Field: field, Reason: fmt.Sprintf("hour out of range: %d", hour)}
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, &ConfigError{Field: field, Reason: fmt.Sprintf("minute out of range: %d", minute)}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}
