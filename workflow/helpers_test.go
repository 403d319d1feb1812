package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// issueDay is the fixed "today" most tests generate invoices on.
var issueDay = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func advocateCtx(advocateId string) context.Context {
	ctx := utils.SetAdvocateIdInContext(context.Background(), advocateId)
	return utils.SetActorNameInContext(ctx, "Adv "+advocateId)
}

func testRegistry(t *testing.T) *models.JurisdictionRegistry {
	t.Helper()
	reg, err := models.NewJurisdictionRegistry(models.DefaultJurisdictionRules())
	require.NoError(t, err)
	return reg
}

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type sentNotification struct {
	Kind    NotificationKind
	Payload NotificationPayload
}

// recordingNotifier keeps every notification and fails the invoice numbers in failFor.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []sentNotification
	failFor map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: map[string]bool{}}
}

func (n *recordingNotifier) Notify(ctx context.Context, kind NotificationKind, payload NotificationPayload) NotifyResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[payload.InvoiceNumber] {
		return NotifyResult{Error: errors.New("mailer unavailable")}
	}
	n.sent = append(n.sent, sentNotification{Kind: kind, Payload: payload})
	return NotifyResult{Success: true, ID: uuid.NewString()}
}

func (n *recordingNotifier) FailFor(invoiceNumber string, fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFor[invoiceNumber] = fail
}

func (n *recordingNotifier) Sent(kind NotificationKind) []NotificationPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationPayload
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s.Payload)
		}
	}
	return out
}

// billingFixture wires every service against one store and one clock.
type billingFixture struct {
	DB        *gorm.DB
	Clock     *testClock
	Notifier  *recordingNotifier
	Fees      *FeeAggregator
	VAT       *VATEngine
	Invoices  *InvoiceService
	Reminders *ReminderScheduler
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db := newTestDB(t)
	logger := newTestLogger()
	registry := testRegistry(t)
	clock := &testClock{now: issueDay}
	notifier := newRecordingNotifier()

	invoices := NewInvoiceService(db, logger, registry, notifier)
	invoices.Now = clock.Now
	reminders := NewReminderScheduler(db, logger, registry, notifier, nil)
	reminders.Now = clock.Now

	return &billingFixture{
		DB:        db,
		Clock:     clock,
		Notifier:  notifier,
		Fees:      NewFeeAggregator(db, logger),
		VAT:       NewVATEngine(db, logger),
		Invoices:  invoices,
		Reminders: reminders,
	}
}

func (f *billingFixture) matter(t *testing.T, ctx context.Context, bar string) *models.Matter {
	t.Helper()
	m, err := models.CreateMatter(ctx, f.DB, models.NewMatter{
		Title:       "Nkosi v Road Accident Fund",
		ClientName:  "Thandi Nkosi",
		ClientEmail: "thandi@example.com",
		Bar:         bar,
	})
	require.NoError(t, err)
	return m
}

func (f *billingFixture) timeEntry(t *testing.T, ctx context.Context, matterId int, description, hours, rate string) *models.TimeEntry {
	t.Helper()
	e, err := f.Fees.CreateTimeEntry(ctx, matterId, NewTimeEntry{
		Date:        issueDay.AddDate(0, 0, -3),
		Description: description,
		Hours:       decimal.RequireFromString(hours),
		Rate:        decimal.RequireFromString(rate),
	})
	require.NoError(t, err)
	return e
}

func (f *billingFixture) disbursement(t *testing.T, ctx context.Context, matterId int, code, amount string) *models.Disbursement {
	t.Helper()
	dtype, err := models.FindDisbursementTypeByCode(f.DB, code)
	require.NoError(t, err)
	d, err := f.Fees.CreateDisbursement(ctx, matterId, NewDisbursement{
		DisbursementTypeId: dtype.ID,
		Date:               issueDay.AddDate(0, 0, -2),
		Description:        dtype.Name,
		Amount:             decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return d
}

// sentInvoice generates a final invoice over all unbilled work and marks it sent.
func (f *billingFixture) sentInvoice(t *testing.T, ctx context.Context, matterId int) *models.Invoice {
	t.Helper()
	inv, err := f.Invoices.GenerateInvoice(ctx, matterId, LineItemSelector{All: true}, GenerateOptions{})
	require.NoError(t, err)
	inv, err = f.Invoices.UpdateStatus(ctx, inv.ID, "sent")
	require.NoError(t, err)
	return inv
}

func (f *billingFixture) reload(t *testing.T, id int) *models.Invoice {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, f.DB.First(&inv, id).Error)
	return &inv
}

func (f *billingFixture) reloadTimeEntry(t *testing.T, id int) *models.TimeEntry {
	t.Helper()
	var e models.TimeEntry
	require.NoError(t, f.DB.First(&e, id).Error)
	return &e
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, utils.KindOf(err), "error: %v", err)
}
