// process-reminders runs one reminder sweep and exits. Use it from Cloud Scheduler or cron
// when the in-process worker is disabled (REMINDER_WORKER_ENABLED=false).
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/process-reminders
//
// With REDIS_ADDRESS set the sweep takes the same lease as the API servers, so it never
// overlaps a sweep running elsewhere.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/workflow"
)

const reminderLeaseKey = "lease:reminder-sweep"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := config.LoadSettings()
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry(ctx)
		defer func() { _ = config.GetRedisDB().Close() }()
	}
	defer config.ClosePubSub()

	registry, err := models.LoadJurisdictionRegistry(settings.JurisdictionRules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load jurisdiction rules: %v\n", err)
		os.Exit(1)
	}
	var lease workflow.Lease
	if locker := config.GetRedisLock(); locker != nil {
		lease = workflow.NewRedisLease(locker, reminderLeaseKey, settings.ReminderLease)
	}
	scheduler := workflow.NewReminderScheduler(db, logger, registry, workflow.NewNotifier(settings.NotificationTopic, logger), lease)

	result, err := scheduler.ProcessReminders(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reminder sweep failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if result.Failed > 0 {
		os.Exit(2)
	}
}
