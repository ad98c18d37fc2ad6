package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	BaseURL         string
	DownloadDir     string
	StorePath       string
	RegionCode      string
	MaxForecastHour int
	DownloadTimeout time.Duration
	UpdateInterval  time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Backfill bounds a one-shot historical run. Both must be set together;
	// when unset the service runs on the operational schedule.
	BackfillStart time.Time
	BackfillEnd   time.Time

	// Kafka run-report notification configuration.
	KafkaBrokers       []string
	KafkaRunTopic      string
	KafkaNotifyEnabled bool
}

// Backfill reports whether a historical window was configured.
func (c *Config) Backfill() bool {
	return !c.BackfillStart.IsZero()
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	updateInterval, err := parseDuration("UPDATE_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxHour, err := parseMaxForecastHour()
	if err != nil {
		return nil, err
	}
	backfillStart, backfillEnd, err := parseBackfill()
	if err != nil {
		return nil, err
	}

	notifyEnabled := false
	if v := os.Getenv("KAFKA_NOTIFY_ENABLED"); v != "" {
		notifyEnabled = v == "true"
	}

	cfg := &Config{
		BaseURL:         envOrDefault("NBM_BASE_URL", "https://nomads.ncep.noaa.gov/pub/data/nccf/com/blend/prod"),
		DownloadDir:     envOrDefault("NBM_DOWNLOAD_DIR", "data/download"),
		StorePath:       envOrDefault("NBM_STORE_PATH", "data/nbm.zarr"),
		RegionCode:      envOrDefault("NBM_REGION", domain.DefaultRegionCode),
		MaxForecastHour: maxHour,
		DownloadTimeout: downloadTimeout,
		UpdateInterval:  updateInterval,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BackfillStart: backfillStart,
		BackfillEnd:   backfillEnd,

		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRunTopic:      envOrDefault("KAFKA_RUN_TOPIC", "nbm-run-reports"),
		KafkaNotifyEnabled: notifyEnabled,
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("NBM_BASE_URL is required")
	}
	if cfg.StorePath == "" {
		return nil, errors.New("NBM_STORE_PATH is required")
	}
	if cfg.KafkaNotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_NOTIFY_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaNotifyEnabled && cfg.KafkaRunTopic == "" {
		return nil, errors.New("KAFKA_NOTIFY_ENABLED is true but KAFKA_RUN_TOPIC is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMaxForecastHour() (int, error) {
	s := os.Getenv("NBM_MAX_FORECAST_HOUR")
	if s == "" {
		return domain.MaxForecastHour, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > domain.MaxForecastHour {
		return 0, fmt.Errorf("invalid NBM_MAX_FORECAST_HOUR: must be 1-%d", domain.MaxForecastHour)
	}
	return n, nil
}

// parseBackfill reads the optional BACKFILL_START/BACKFILL_END window.
// Values are init times in RFC 3339 or "2006-01-02T15" form.
func parseBackfill() (time.Time, time.Time, error) {
	startStr := os.Getenv("BACKFILL_START")
	endStr := os.Getenv("BACKFILL_END")
	if startStr == "" && endStr == "" {
		return time.Time{}, time.Time{}, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("BACKFILL_START and BACKFILL_END must be set together")
	}
	start, err := parseInitTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid BACKFILL_START: %w", err)
	}
	end, err := parseInitTime(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid BACKFILL_END: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("BACKFILL_END precedes BACKFILL_START")
	}
	return start, end, nil
}

func parseInitTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
