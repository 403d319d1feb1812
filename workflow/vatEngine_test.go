package workflow

import (
	"bytes"
	"testing"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSuggestVATForCourtFees(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	court, err := models.FindDisbursementTypeByCode(f.DB, "court_fees")
	require.NoError(t, err)

	s, err := f.VAT.SuggestVAT(ctx, court.ID, decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, models.VATTreatmentExempt, s.SuggestedTreatment)
	assert.True(t, s.VATAmount.IsZero())
	assert.False(t, s.CanOverride)

	_, err = f.VAT.SuggestVAT(ctx, court.ID, decimal.Zero)
	requireKind(t, err, utils.KindValidation)

	_, err = f.VAT.SuggestVAT(ctx, 9999, decimal.NewFromInt(10))
	requireKind(t, err, utils.KindNotFound)
}

func TestCreateDisbursementRecordsSuggestion(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")

	d := f.disbursement(t, ctx, m.ID, "accommodation", "2300")
	assert.Equal(t, models.VATTreatmentInclusive, d.VATTreatment)
	assert.True(t, d.VATAmount.Equal(decimal.NewFromInt(300)))
	assert.False(t, d.VATOverridden)

	log, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.VATAuditActionCreated, log[0].Action)
	assert.Equal(t, "travel", log[0].Category)
	assert.Equal(t, "Adv adv-1", log[0].Actor)
}

func TestCreateDisbursementRefusesOverrideOfFixedRule(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	court, err := models.FindDisbursementTypeByCode(f.DB, "court_fees")
	require.NoError(t, err)
	inclusive := models.VATTreatmentInclusive

	_, err = f.Fees.CreateDisbursement(ctx, m.ID, NewDisbursement{
		DisbursementTypeId: court.ID,
		Date:               issueDay,
		Description:        "Issue fee",
		Amount:             decimal.NewFromInt(100),
		VATTreatment:       &inclusive,
	})
	requireKind(t, err, utils.KindCompliance)
}

func TestCorrectVATTreatment(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	d := f.disbursement(t, ctx, m.ID, "courier", "115")
	require.Equal(t, models.VATTreatmentInclusive, d.VATTreatment)

	_, err := f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_exempt", "  ", false)
	requireKind(t, err, utils.KindValidation)

	corrected, err := f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_exempt", "supplier is not a VAT vendor", false)
	require.NoError(t, err)
	assert.Equal(t, models.VATTreatmentExempt, corrected.VATTreatment)
	assert.True(t, corrected.VATAmount.IsZero())
	assert.True(t, corrected.VATOverridden)

	log, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	last := log[1]
	assert.Equal(t, models.VATAuditActionOverridden, last.Action)
	require.NotNil(t, last.OldTreatment)
	assert.Equal(t, models.VATTreatmentInclusive, *last.OldTreatment)
	assert.Equal(t, models.VATTreatmentExempt, last.NewTreatment)
	assert.True(t, last.OldVATAmount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "supplier is not a VAT vendor", last.Reason)

	// Going back to the suggestion is a correction, not an override.
	back, err := f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_inclusive", "tax invoice received", false)
	require.NoError(t, err)
	assert.False(t, back.VATOverridden)
	log, err = f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VATAuditActionCorrected, log[2].Action)
}

func TestCorrectVATTreatmentOnFixedRuleIsRefused(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	d := f.disbursement(t, ctx, m.ID, "sheriff_fees", "450")

	_, err := f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_inclusive", "client asked", false)
	requireKind(t, err, utils.KindCompliance)

	log, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestCorrectVATTreatmentFlagsBilledInvoice(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	f.timeEntry(t, ctx, m.ID, "Drafting particulars of claim", "2", "1500")
	d := f.disbursement(t, ctx, m.ID, "travel", "230")

	inv, err := f.Invoices.GenerateInvoice(ctx, m.ID, LineItemSelector{All: true}, GenerateOptions{})
	require.NoError(t, err)

	_, err = f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_exempt", "private vehicle, no VAT", true)
	require.NoError(t, err)

	assert.True(t, f.reload(t, inv.ID).NeedsRegeneration)
	log, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	last := log[len(log)-1]
	require.NotNil(t, last.InvoiceId)
	assert.Equal(t, inv.ID, *last.InvoiceId)
	assert.True(t, last.InvoiceRegenerationFlagged)
}

func TestCorrectVATTreatmentLeavesPaidInvoiceAlone(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	d := f.disbursement(t, ctx, m.ID, "travel", "230")
	inv := f.sentInvoice(t, ctx, m.ID)
	_, err := f.Invoices.RecordPayment(ctx, inv.ID, PaymentInput{Amount: inv.TotalAmount, Method: "eft"})
	require.NoError(t, err)

	before, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_exempt", "private vehicle, no VAT", true)
	requireKind(t, err, utils.KindCompliance)

	var unchanged models.Disbursement
	require.NoError(t, f.DB.First(&unchanged, d.ID).Error)
	assert.Equal(t, models.VATTreatmentInclusive, unchanged.VATTreatment)
	after, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	_, err = f.VAT.CorrectVATTreatment(ctx, d.ID, "vat_exempt", "private vehicle, no VAT", false)
	require.NoError(t, err)
	paid := f.reload(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.False(t, paid.NeedsRegeneration)
}

func TestCorrectVATTreatmentOfAnotherAdvocate(t *testing.T) {
	f := newBillingFixture(t)
	owner := advocateCtx("adv-1")
	m := f.matter(t, owner, "johannesburg")
	d := f.disbursement(t, owner, m.ID, "courier", "115")

	_, err := f.VAT.CorrectVATTreatment(advocateCtx("adv-2"), d.ID, "vat_exempt", "mine now", false)
	requireKind(t, err, utils.KindUnauthorized)
}

func TestVATStatisticsAndExport(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	f.disbursement(t, ctx, m.ID, "court_fees", "500")
	f.disbursement(t, ctx, m.ID, "sheriff_fees", "250")
	courier := f.disbursement(t, ctx, m.ID, "courier", "115")
	_, err := f.VAT.CorrectVATTreatment(ctx, courier.ID, "vat_exempt", "no tax invoice", false)
	require.NoError(t, err)

	other := advocateCtx("adv-2")
	f.disbursement(t, other, f.matter(t, other, "pretoria").ID, "court_fees", "999")

	stats, err := f.VAT.GetVATStatistics(ctx, day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	byCategory := map[string]*VATCategoryStatistics{}
	for _, s := range stats {
		byCategory[s.Category] = s
	}
	require.Contains(t, byCategory, "court")
	require.Contains(t, byCategory, "office")
	assert.EqualValues(t, 2, byCategory["court"].Count)
	assert.True(t, byCategory["court"].TotalAmount.Equal(decimal.NewFromInt(750)))
	assert.EqualValues(t, 2, byCategory["court"].ExemptCount)
	assert.EqualValues(t, 1, byCategory["office"].OverrideCount)
	assert.True(t, byCategory["office"].TotalVAT.IsZero())

	_, err = f.VAT.GetVATStatistics(ctx, day(2026, 3, 31), day(2026, 3, 1))
	requireKind(t, err, utils.KindValidation)

	// Audit rows are stamped with the wall clock, disbursements with the fixture clock.
	var buf bytes.Buffer
	require.NoError(t, f.VAT.ExportAuditLog(ctx, day(2026, 3, 1), time.Now().UTC().AddDate(0, 0, 1), &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("VAT Audit")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Date", rows[0][0])
	statRows, err := book.GetRows("Statistics")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(statRows), 2)
}
