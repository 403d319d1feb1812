package workflow

import (
	"testing"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWIP(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")

	wip, err := f.Fees.ComputeWIP(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, wip.Total.IsZero())

	f.timeEntry(t, ctx, m.ID, "Consultation with attorney", "1.5", "2000")
	_, err = f.Fees.CreateLoggedService(ctx, m.ID, NewLoggedService{
		Date:        issueDay,
		Description: "Settling notice of motion",
		Quantity:    decimal.NewFromInt(2),
		UnitRate:    decimal.NewFromInt(750),
	})
	require.NoError(t, err)
	f.disbursement(t, ctx, m.ID, "court_fees", "350")

	wip, err = f.Fees.ComputeWIP(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, wip.TimeEntries.Equal(decimal.NewFromInt(3000)))
	assert.True(t, wip.LoggedServices.Equal(decimal.NewFromInt(1500)))
	assert.True(t, wip.Disbursements.Equal(decimal.NewFromInt(350)))
	assert.True(t, wip.Total.Equal(decimal.NewFromInt(4850)))

	_, err = f.Fees.ComputeWIP(advocateCtx("adv-2"), m.ID)
	requireKind(t, err, utils.KindUnauthorized)
	_, err = f.Fees.ComputeWIP(ctx, 404)
	requireKind(t, err, utils.KindNotFound)
}

func TestLineItemValidation(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")

	_, err := f.Fees.CreateTimeEntry(ctx, m.ID, NewTimeEntry{
		Date: issueDay, Description: "Research", Hours: decimal.Zero, Rate: decimal.NewFromInt(1000),
	})
	requireKind(t, err, utils.KindValidation)

	court, err := models.FindDisbursementTypeByCode(f.DB, "court_fees")
	require.NoError(t, err)
	_, err = f.Fees.CreateDisbursement(ctx, m.ID, NewDisbursement{
		DisbursementTypeId: court.ID, Date: issueDay, Description: "Issue fee", Amount: decimal.NewFromInt(-5),
	})
	requireKind(t, err, utils.KindValidation)
}

func TestFreezeLineItemsIsAllOrNothing(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	a := f.timeEntry(t, ctx, m.ID, "Drafting heads of argument", "3", "1000")
	b := f.timeEntry(t, ctx, m.ID, "Court appearance", "4", "1000")

	first, err := f.Invoices.GenerateInvoice(ctx, m.ID, LineItemSelector{Items: []models.LineItemRef{
		{Type: models.LineItemTypeTimeEntry, ID: a.ID},
	}}, GenerateOptions{})
	require.NoError(t, err)

	// b is free but a is not: nothing may be claimed.
	_, err = f.Invoices.GenerateInvoice(ctx, m.ID, LineItemSelector{Items: []models.LineItemRef{
		{Type: models.LineItemTypeTimeEntry, ID: a.ID},
		{Type: models.LineItemTypeTimeEntry, ID: b.ID},
	}}, GenerateOptions{})
	requireKind(t, err, utils.KindConcurrencyConflict)

	free := f.reloadTimeEntry(t, b.ID)
	assert.False(t, free.Billed)
	assert.Nil(t, free.InvoiceId)
	claimed := f.reloadTimeEntry(t, a.ID)
	require.NotNil(t, claimed.InvoiceId)
	assert.Equal(t, first.ID, *claimed.InvoiceId)

	var invoices int64
	require.NoError(t, f.DB.Model(&models.Invoice{}).Count(&invoices).Error)
	assert.EqualValues(t, 1, invoices)
}

func TestBilledLineItemsAreImmutable(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	entry := f.timeEntry(t, ctx, m.ID, "Consultation", "1", "1000")
	disb := f.disbursement(t, ctx, m.ID, "courier", "115")

	_, err := f.Invoices.GenerateInvoice(ctx, m.ID, LineItemSelector{All: true}, GenerateOptions{})
	require.NoError(t, err)

	_, err = f.Fees.UpdateTimeEntry(ctx, entry.ID, NewTimeEntry{
		Date: issueDay, Description: "Consultation", Hours: decimal.NewFromInt(2), Rate: decimal.NewFromInt(1000),
	})
	requireKind(t, err, utils.KindCompliance)

	err = f.Fees.DeleteLineItem(ctx, models.LineItemTypeTimeEntry, entry.ID)
	requireKind(t, err, utils.KindCompliance)

	_, err = f.Fees.UpdateDisbursement(ctx, disb.ID, NewDisbursement{
		DisbursementTypeId: disb.DisbursementTypeId, Date: issueDay, Description: "Courier", Amount: decimal.NewFromInt(230),
	})
	requireKind(t, err, utils.KindCompliance)

	wip, err := f.Fees.ComputeWIP(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, wip.Total.IsZero())
}

func TestUpdateAndDeleteUnbilledItems(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	entry := f.timeEntry(t, ctx, m.ID, "Consultation", "1", "1000")

	updated, err := f.Fees.UpdateTimeEntry(ctx, entry.ID, NewTimeEntry{
		Date: issueDay, Description: "Consultation and advice", Hours: decimal.RequireFromString("1.25"), Rate: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(1250)))

	require.NoError(t, f.Fees.DeleteLineItem(ctx, models.LineItemTypeTimeEntry, entry.ID))
	err = f.Fees.DeleteLineItem(ctx, models.LineItemTypeTimeEntry, entry.ID)
	requireKind(t, err, utils.KindNotFound)
}

func TestUpdateDisbursementKeepsOverrideAndAudits(t *testing.T) {
	f := newBillingFixture(t)
	ctx := advocateCtx("adv-1")
	m := f.matter(t, ctx, "johannesburg")
	courier, err := models.FindDisbursementTypeByCode(f.DB, "courier")
	require.NoError(t, err)
	exempt := models.VATTreatmentExempt

	d, err := f.Fees.CreateDisbursement(ctx, m.ID, NewDisbursement{
		DisbursementTypeId: courier.ID, Date: issueDay, Description: "Courier",
		Amount: decimal.NewFromInt(115), VATTreatment: &exempt, Reason: "supplier not VAT registered",
	})
	require.NoError(t, err)
	assert.True(t, d.VATOverridden)

	edited, err := f.Fees.UpdateDisbursement(ctx, d.ID, NewDisbursement{
		DisbursementTypeId: courier.ID, Date: issueDay, Description: "Courier, two parcels", Amount: decimal.NewFromInt(230),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VATTreatmentExempt, edited.VATTreatment)
	assert.True(t, edited.VATOverridden)

	photocopies, err := models.FindDisbursementTypeByCode(f.DB, "photocopies")
	require.NoError(t, err)
	retyped, err := f.Fees.UpdateDisbursement(ctx, d.ID, NewDisbursement{
		DisbursementTypeId: photocopies.ID, Date: issueDay, Description: "Copies", Amount: decimal.NewFromInt(230),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VATTreatmentInclusive, retyped.VATTreatment)
	assert.True(t, retyped.VATAmount.Equal(decimal.NewFromInt(30)))

	log, err := f.VAT.GetAuditLogForDisbursement(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, models.VATAuditActionVATChanged, log[1].Action)
}
