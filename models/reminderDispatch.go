package models

import "time"

type ReminderDispatchStatus string

const (
	ReminderDispatchStarted   ReminderDispatchStatus = "STARTED"
	ReminderDispatchSucceeded ReminderDispatchStatus = "SUCCEEDED"
	ReminderDispatchFailed    ReminderDispatchStatus = "FAILED"
)

// ReminderDispatch makes reminder delivery durable and idempotent.
// Unique constraint: (invoice_id, reminder_no).
type ReminderDispatch struct {
	ID             int                    `gorm:"primary_key" json:"id"`
	InvoiceId      int                    `gorm:"not null;uniqueIndex:uniq_reminder_dispatch" json:"invoice_id"`
	ReminderNo     int                    `gorm:"not null;uniqueIndex:uniq_reminder_dispatch" json:"reminder_no"`
	Tier           ReminderTier           `gorm:"size:20;not null" json:"tier"`
	Status         ReminderDispatchStatus `gorm:"size:20;not null;index" json:"status"`
	Attempts       int                    `gorm:"not null;default:0" json:"attempts"`
	NotificationId *string                `gorm:"size:255" json:"notification_id"`
	LastError      *string                `gorm:"type:text" json:"last_error"`
	CreatedAt      time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}
