package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// escalateAfterReminders is the reminder count at which a sent invoice becomes overdue.
const escalateAfterReminders = 3

type ReminderScheduler struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Registry *models.JurisdictionRegistry
	Notifier Notifier
	Lease    Lease
	Tracer   trace.Tracer
	Now      func() time.Time
	Interval time.Duration
}

func NewReminderScheduler(db *gorm.DB, logger *logrus.Logger, registry *models.JurisdictionRegistry, notifier Notifier, lease Lease) *ReminderScheduler {
	if lease == nil {
		lease = &LocalLease{}
	}
	return &ReminderScheduler{
		DB:       db,
		Logger:   logger,
		Registry: registry,
		Notifier: notifier,
		Lease:    lease,
		Tracer:   otel.Tracer(tracerName),
		Now:      time.Now,
		Interval: time.Hour,
	}
}

type ReminderRunResult struct {
	Examined  int  `json:"examined"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Escalated int  `json:"escalated"`
	Skipped   bool `json:"skipped"`
}

type reminderOutcome struct {
	Sent      bool
	Escalated bool
}

// Run sweeps every Interval until ctx is cancelled.
func (s *ReminderScheduler) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := s.ProcessReminders(ctx); err != nil {
			config.LogError(s.Logger, "reminderScheduler.go", "Run", "ProcessReminders", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Interval):
		}
	}
}

// ProcessReminders sends every due reminder once. Only one sweep runs at a time across
// processes; a sweep that cannot take the lease returns Skipped. A failure on one invoice
// is logged and the sweep moves on.
func (s *ReminderScheduler) ProcessReminders(ctx context.Context) (result *ReminderRunResult, err error) {
	ctx, span := s.Tracer.Start(ctx, "ReminderScheduler.ProcessReminders")
	defer func() { endSpan(span, err) }()

	result = &ReminderRunResult{}
	release, err := s.Lease.Acquire(ctx)
	if errors.Is(err, ErrLeaseHeld) {
		result.Skipped = true
		span.SetAttributes(attribute.Bool("reminders.skipped", true))
		return result, nil
	}
	if err != nil {
		return nil, utils.NewExternalServiceError(err, "could not acquire reminder lease")
	}
	defer release()

	ctx = utils.SystemContext(ctx)
	today := utils.DateOnly(s.Now())
	candidates, err := models.InvoicesWithReminderBefore(ctx, s.DB, "", today)
	if err != nil {
		config.LogError(s.Logger, "reminderScheduler.go", "ProcessReminders", "InvoicesWithReminderBefore", today, err)
		return nil, err
	}

	for _, inv := range candidates {
		if ctx.Err() != nil {
			break
		}
		result.Examined++
		outcome, err := s.processOne(ctx, inv)
		if err != nil {
			result.Failed++
			config.LogError(s.Logger, "reminderScheduler.go", "ProcessReminders", "processOne",
				map[string]interface{}{"invoiceId": inv.ID, "invoiceNumber": inv.InvoiceNumber}, err)
			continue
		}
		if outcome.Sent {
			result.Sent++
		}
		if outcome.Escalated {
			result.Escalated++
		}
	}

	span.SetAttributes(
		attribute.Int("reminders.examined", result.Examined),
		attribute.Int("reminders.sent", result.Sent),
		attribute.Int("reminders.failed", result.Failed),
	)
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"examined":  result.Examined,
			"sent":      result.Sent,
			"failed":    result.Failed,
			"escalated": result.Escalated,
		}).Info("reminder sweep finished")
	}
	return result, nil
}

// processOne dispatches the next reminder of inv and advances its bookkeeping. The
// dispatch row makes a resend after a crash a no-op; the guarded update makes the
// advance happen at most once per reminder.
func (s *ReminderScheduler) processOne(ctx context.Context, inv *models.Invoice) (reminderOutcome, error) {
	var outcome reminderOutcome
	rules, err := s.Registry.Lookup(inv.Bar)
	if err != nil {
		return outcome, err
	}
	reminderNo := inv.RemindersSent + 1
	tier := models.ReminderTierFor(inv.RemindersSent)

	db := s.DB.WithContext(ctx)
	alreadySent, err := BeginReminderDispatch(db, inv.ID, reminderNo, tier)
	if err != nil {
		return outcome, err
	}
	if !alreadySent {
		var matter models.Matter
		if err := db.First(&matter, inv.MatterId).Error; err != nil {
			_ = MarkReminderDispatchFailed(db, inv.ID, reminderNo, err)
			return outcome, utils.NotFoundOr(err, "matter", inv.MatterId)
		}
		payload := notificationPayload(inv, &matter)
		payload.ReminderNo = reminderNo
		payload.Tier = string(tier)

		res := s.Notifier.Notify(ctx, NotificationPaymentReminder, payload)
		if !res.Success {
			sendErr := utils.NewExternalServiceError(res.Error, "reminder %d for invoice %s was not delivered", reminderNo, inv.InvoiceNumber)
			if markErr := MarkReminderDispatchFailed(db, inv.ID, reminderNo, sendErr); markErr != nil {
				config.LogError(s.Logger, "reminderScheduler.go", "processOne", "MarkReminderDispatchFailed", inv.ID, markErr)
			}
			return outcome, sendErr
		}
		if err := MarkReminderDispatchSucceeded(db, inv.ID, reminderNo, res.ID); err != nil {
			return outcome, err
		}
		outcome.Sent = true
	}

	escalated, err := s.advance(db, inv, rules)
	if err != nil {
		return outcome, err
	}
	outcome.Escalated = escalated
	return outcome, nil
}

// advance records one more reminder on inv, provided nobody else did since inv was read.
func (s *ReminderScheduler) advance(db *gorm.DB, inv *models.Invoice, rules models.JurisdictionRules) (bool, error) {
	sent := inv.RemindersSent + 1
	status := inv.Status
	escalated := false
	if sent >= escalateAfterReminders && status == models.InvoiceStatusSent {
		status = models.InvoiceStatusOverdue
		escalated = true
	}
	res := db.Model(&models.Invoice{}).
		Where("id = ? AND reminders_sent = ? AND status = ?", inv.ID, inv.RemindersSent, inv.Status).
		Updates(map[string]interface{}{
			"reminders_sent":     sent,
			"last_reminder_at":   s.Now().UTC(),
			"next_reminder_date": rules.ReminderDate(inv.IssueDate, sent),
			"status":             status,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return escalated, nil
}

// SendReminder sends the next reminder of one invoice now, regardless of its schedule.
func (s *ReminderScheduler) SendReminder(ctx context.Context, invoiceId int) (*models.Invoice, error) {
	inv, err := models.GetOwnedInvoice(ctx, s.DB, invoiceId)
	if err != nil {
		return nil, err
	}
	if !inv.Status.RemindersDue() {
		return nil, &utils.BillingError{
			Kind:    utils.KindInvalidStateTransition,
			Message: "reminders can only be sent for sent or overdue invoices, invoice is " + string(inv.Status),
		}
	}
	if _, err := s.processOne(ctx, inv); err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(s.Logger, "reminderScheduler.go", "SendReminder", "processOne", invoiceId, err)
		}
		return nil, err
	}
	return models.GetOwnedInvoice(ctx, s.DB, invoiceId)
}

type UpcomingReminder struct {
	InvoiceId     int                  `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	MatterId      int                  `json:"matter_id"`
	Status        models.InvoiceStatus `json:"status"`
	DueDate       time.Time            `json:"due_date"`
	ReminderDate  time.Time            `json:"reminder_date"`
	ReminderNo    int                  `json:"reminder_no"`
	Tier          models.ReminderTier  `json:"tier"`
	Outstanding   decimal.Decimal      `json:"outstanding"`
	Late          bool                 `json:"late"`
}

// GetUpcomingReminders lists the caller's reminders due within horizonDays of today,
// including ones already late.
func (s *ReminderScheduler) GetUpcomingReminders(ctx context.Context, horizonDays int) ([]*UpcomingReminder, error) {
	if horizonDays < 0 {
		return nil, utils.NewValidationError("horizon days must not be negative")
	}
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	today := utils.DateOnly(s.Now())
	invoices, err := models.InvoicesWithReminderBefore(ctx, s.DB, advocateId, utils.AddDays(today, horizonDays))
	if err != nil {
		return nil, err
	}
	out := make([]*UpcomingReminder, 0, len(invoices))
	for _, inv := range invoices {
		reminderDate := utils.DateOnly(*inv.NextReminderDate)
		out = append(out, &UpcomingReminder{
			InvoiceId:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			MatterId:      inv.MatterId,
			Status:        inv.Status,
			DueDate:       inv.DueDate,
			ReminderDate:  reminderDate,
			ReminderNo:    inv.RemindersSent + 1,
			Tier:          models.ReminderTierFor(inv.RemindersSent),
			Outstanding:   inv.Outstanding(),
			Late:          reminderDate.Before(today),
		})
	}
	return out, nil
}
