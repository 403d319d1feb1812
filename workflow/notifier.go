package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type NotificationKind string

const (
	NotificationInvoiceIssued   NotificationKind = "invoice_issued"
	NotificationProFormaQuote   NotificationKind = "pro_forma_quote"
	NotificationPaymentReminder NotificationKind = "payment_reminder"
)

// NotificationPayload is what a downstream mailer needs to render the message.
type NotificationPayload struct {
	AdvocateId    string          `json:"advocate_id"`
	InvoiceId     int             `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	DueDate       time.Time       `json:"due_date"`
	ReminderNo    int             `json:"reminder_no,omitempty"`
	Tier          string          `json:"tier,omitempty"`
}

type NotifyResult struct {
	Success bool
	ID      string
	Error   error
}

// Notifier delivers invoice notifications. Implementations must not block past ctx.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, payload NotificationPayload) NotifyResult
}

type PubSubNotifier struct {
	Topic string
}

func NewPubSubNotifier(topic string) *PubSubNotifier {
	return &PubSubNotifier{Topic: topic}
}

func (n *PubSubNotifier) Notify(ctx context.Context, kind NotificationKind, payload NotificationPayload) NotifyResult {
	if n.Topic == "" {
		return NotifyResult{Error: errors.New("notification topic is not configured")}
	}
	attrs := map[string]string{
		"kind":        string(kind),
		"advocate_id": payload.AdvocateId,
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		attrs["correlation_id"] = correlationId
	}
	id, err := config.PublishJSON(ctx, n.Topic, payload, attrs)
	if err != nil {
		return NotifyResult{Error: err}
	}
	return NotifyResult{Success: true, ID: id}
}

// LogNotifier records notifications in the log only. Used when Pub/Sub is not configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, kind NotificationKind, payload NotificationPayload) NotifyResult {
	id := uuid.NewString()
	if n.Logger != nil {
		n.Logger.WithFields(logrus.Fields{
			"kind":           kind,
			"notificationId": id,
			"invoiceId":      payload.InvoiceId,
			"invoiceNumber":  payload.InvoiceNumber,
			"reminderNo":     payload.ReminderNo,
		}).Info("notification")
	}
	return NotifyResult{Success: true, ID: id}
}

// NewNotifier picks the Pub/Sub publisher when a project and topic are configured.
func NewNotifier(topic string, logger *logrus.Logger) Notifier {
	if topic != "" && config.PubSubConfigured() {
		return NewPubSubNotifier(topic)
	}
	return &LogNotifier{Logger: logger}
}
