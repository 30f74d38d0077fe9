package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	SSOBaseURL    string
	SSOServiceURL string
	PortalBaseURL string
	SignBaseURL   string

	AccountsFile string
	Port         string
	DatabaseURL  string

	PollInterval time.Duration
	SessionTTL   time.Duration
	HTTPTimeout  time.Duration

	// DateOverride forces the schedule target date (YYYYMMDD); debugging only.
	DateOverride string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		SSOBaseURL:    "https://sso.buaa.edu.cn",
		SSOServiceURL: "https://iclass.buaa.edu.cn:8346/",
		PortalBaseURL: "https://iclass.buaa.edu.cn:8346",
		SignBaseURL:   "http://iclass.buaa.edu.cn:8081",
		AccountsFile:  "student_accounts.json",
		Port:          "8787",
		PollInterval:  time.Minute,
		SessionTTL:    30 * time.Minute,
		HTTPTimeout:   20 * time.Second,
	}

	if v := os.Getenv("SSO_BASE_URL"); v != "" {
		cfg.SSOBaseURL = v
	}
	if v := os.Getenv("SSO_SERVICE_URL"); v != "" {
		cfg.SSOServiceURL = v
	}
	if v := os.Getenv("PORTAL_BASE_URL"); v != "" {
		cfg.PortalBaseURL = v
	}
	if v := os.Getenv("SIGN_BASE_URL"); v != "" {
		cfg.SignBaseURL = v
	}
	if v := os.Getenv("ACCOUNTS_FILE"); v != "" {
		cfg.AccountsFile = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}

	// DATABASE_URL is optional; when set, sign-in attempts are recorded to Postgres.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATE_OVERRIDE"); v != "" {
		if _, err := time.Parse("20060102", v); err != nil {
			return nil, fmt.Errorf("DATE_OVERRIDE must be YYYYMMDD: %w", err)
		}
		cfg.DateOverride = v
	}

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 1m or 30s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
