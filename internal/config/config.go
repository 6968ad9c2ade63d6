package config

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string  `envconfig:"BOT_TOKEN" required:"true" validate:"required"`
	DBPath   string  `envconfig:"DB_PATH" default:"./data/yoga.db" validate:"required"`
	LogLevel string  `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HTTPAddr string  `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics, empty disables
	AdminIDs []int64 `envconfig:"ADMIN_USER_IDS"`

	// Trial lifecycle
	TrialDuration      Duration `envconfig:"TRIAL_DURATION" default:"15d" validate:"gt=0"`
	ReminderEvery      Duration `envconfig:"REMINDER_EVERY" default:"3d" validate:"gt=0"`
	ExtensionDuration  Duration `envconfig:"EXTENSION_DURATION" default:"1d" validate:"gt=0"`
	PromptCleanupAfter Duration `envconfig:"PROMPT_CLEANUP_AFTER" default:"24h" validate:"gte=0"`
	StartDelay         Duration `envconfig:"START_DELAY" default:"1m" validate:"gte=0"`

	// Maintenance
	MaintenanceEvery Duration `envconfig:"MAINTENANCE_EVERY" default:"24h" validate:"gt=0"`
	PurgeEvery       Duration `envconfig:"PURGE_EVERY" default:"10m" validate:"gt=0"`
	SweepConcurrency int      `envconfig:"SWEEP_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`

	// Messaging
	SendRate     float64 `envconfig:"SEND_RATE" default:"25" validate:"gt=0"` // msgs/sec, Telegram allows ~30
	ContentLimit int     `envconfig:"CONTENT_LIMIT" default:"6" validate:"gte=1"`
	ChatURL      string  `envconfig:"CHAT_URL" validate:"omitempty,url"`
	DiscountURL  string  `envconfig:"DISCOUNT_URL" validate:"omitempty,url"`
	CoachURL     string  `envconfig:"COACH_URL" validate:"omitempty,url"`
}

// Load reads a .env file when present, then environment variables into
// Config, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// IsAdmin reports whether userID is listed in ADMIN_USER_IDS.
func (c Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminIDs, userID)
}
