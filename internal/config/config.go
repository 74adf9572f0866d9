package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	MongoDB  MongoDBConfig
	History  HistoryConfig
	Alerts   AlertsConfig
	WhatsApp WhatsAppConfig
	Sheets   SheetsConfig
	Timezone string
	LogLevel string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects the backing store.
type StorageConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// HistoryConfig controls the audit log retention job.
type HistoryConfig struct {
	RetentionDays int
	CronSchedule  string
}

// AlertsConfig controls the stock alert digest.
type AlertsConfig struct {
	CronSchedule     string
	ExpiryWindowDays int
}

// ExpiryWindow returns the expiry window as a duration.
func (a AlertsConfig) ExpiryWindow() time.Duration {
	return time.Duration(a.ExpiryWindowDays) * 24 * time.Hour
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken    string
	PhoneNumberID  string
	BaseURL        string
	APIVersion     string
	AlertRecipient string
}

// Enabled reports whether alerts can be delivered.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != "" && w.AlertRecipient != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	CronSchedule    string
}

// Enabled reports whether the stock ledger export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	retentionDays, err := getenvInt("HISTORY_RETENTION_DAYS", 365)
	if err != nil {
		return nil, err
	}
	expiryDays, err := getenvInt("ALERT_EXPIRY_WINDOW_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver: getenvWithDefault("STORAGE_DRIVER", DriverMongoDB),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "pharmacy"),
		},
		History: HistoryConfig{
			RetentionDays: retentionDays,
			CronSchedule:  getenvWithDefault("RETENTION_CRON_SCHEDULE", "30 2 * * *"),
		},
		Alerts: AlertsConfig{
			CronSchedule:     getenvWithDefault("ALERT_CRON_SCHEDULE", "0 8 * * *"),
			ExpiryWindowDays: expiryDays,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:    os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:  os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:        getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:     getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			AlertRecipient: os.Getenv("WHATSAPP_ALERT_RECIPIENT"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			CronSchedule:    getenvWithDefault("EXPORT_CRON_SCHEDULE", "0 20 * * 5"),
		},
		Timezone: getenvWithDefault("TIMEZONE", "Africa/Conakry"),
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMongoDB, DriverMemory, c.Storage.Driver)
	}

	if c.History.RetentionDays < 0 {
		return errors.New("HISTORY_RETENTION_DAYS must not be negative")
	}
	if c.Alerts.ExpiryWindowDays < 0 {
		return errors.New("ALERT_EXPIRY_WINDOW_DAYS must not be negative")
	}

	if c.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}

	if c.WhatsApp.AccessToken != "" {
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
