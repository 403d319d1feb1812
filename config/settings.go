package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the process-level configuration read from the environment.
//
// Env:
//   - PORT (default 8080)
//   - REMINDER_INTERVAL_MINUTES (default 60, 0 disables the background worker)
//   - REMINDER_LEASE_SECONDS (default 300)
//   - NOTIFICATION_TOPIC (Pub/Sub topic for invoice and reminder notifications)
//   - JURISDICTION_RULES_FILE (optional YAML/JSON rules file)
//   - CORS_ALLOWED_ORIGINS (comma-separated, required in production)
//   - SKIP_MIGRATIONS=true
//   - REMINDER_WORKER_ENABLED (default true)
type Settings struct {
	Port                  string
	Production            bool
	ReminderInterval      time.Duration
	ReminderLease         time.Duration
	NotificationTopic     string
	JurisdictionRules     string
	CorsAllowedOrigins    []string
	SkipMigrations        bool
	ReminderWorkerEnabled bool
}

func LoadSettings() Settings {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	return Settings{
		Port:                  port,
		Production:            strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production"),
		ReminderInterval:      time.Duration(IntFromEnv("REMINDER_INTERVAL_MINUTES", 60)) * time.Minute,
		ReminderLease:         time.Duration(IntFromEnv("REMINDER_LEASE_SECONDS", 300)) * time.Second,
		NotificationTopic:     strings.TrimSpace(os.Getenv("NOTIFICATION_TOPIC")),
		JurisdictionRules:     strings.TrimSpace(os.Getenv("JURISDICTION_RULES_FILE")),
		CorsAllowedOrigins:    SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		SkipMigrations:        BoolFromEnv("SKIP_MIGRATIONS", false),
		ReminderWorkerEnabled: BoolFromEnv("REMINDER_WORKER_ENABLED", true),
	}
}

func IntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func BoolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
