package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FeeAggregator owns the unbilled line items of a matter.
type FeeAggregator struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewFeeAggregator(db *gorm.DB, logger *logrus.Logger) *FeeAggregator {
	return &FeeAggregator{DB: db, Logger: logger}
}

type WIPSummary struct {
	MatterId       int             `json:"matter_id"`
	TimeEntries    decimal.Decimal `json:"time_entries"`
	LoggedServices decimal.Decimal `json:"logged_services"`
	Disbursements  decimal.Decimal `json:"disbursements"`
	Total          decimal.Decimal `json:"total"`
}

// ComputeWIP totals the unbilled work on a matter. It reads the store on every call.
func (a *FeeAggregator) ComputeWIP(ctx context.Context, matterId int) (*WIPSummary, error) {
	if _, err := models.GetOwnedMatter(ctx, a.DB, matterId); err != nil {
		return nil, err
	}
	db := a.DB.WithContext(ctx)
	sums := make(map[models.LineItemType]decimal.Decimal, 3)
	for _, t := range models.LineItemTypes() {
		total, err := models.SumUnbilled(db, t, matterId)
		if err != nil {
			config.LogError(a.Logger, "feeAggregator.go", "ComputeWIP", "SumUnbilled", t, err)
			return nil, err
		}
		sums[t] = utils.RoundMoney(total)
	}
	wip := &WIPSummary{
		MatterId:       matterId,
		TimeEntries:    sums[models.LineItemTypeTimeEntry],
		LoggedServices: sums[models.LineItemTypeLoggedService],
		Disbursements:  sums[models.LineItemTypeDisbursement],
	}
	wip.Total = wip.TimeEntries.Add(wip.LoggedServices).Add(wip.Disbursements)
	return wip, nil
}

// FreezeLineItems marks every referenced item billed against invoiceId, or none of them.
// It must run inside the transaction that creates the invoice: on ConcurrencyConflict the
// caller's rollback undoes the rows that were claimed.
func FreezeLineItems(tx *gorm.DB, refs []models.LineItemRef, matterId int, invoiceId int) error {
	grouped, err := models.GroupRefs(refs)
	if err != nil {
		return err
	}
	var requested, claimed int64
	for _, t := range models.LineItemTypes() {
		ids := grouped[t]
		if len(ids) == 0 {
			continue
		}
		requested += int64(len(ids))
		n, err := models.FreezeByIds(tx, t, ids, matterId, invoiceId)
		if err != nil {
			return err
		}
		claimed += n
	}
	if requested == 0 {
		return utils.NewNothingToInvoiceError("no line items to freeze")
	}
	if claimed != requested {
		return utils.NewConcurrencyConflictError("%d of %d line items were billed or removed concurrently", requested-claimed, requested)
	}
	return nil
}

type NewTimeEntry struct {
	Date        time.Time       `json:"date" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Hours       decimal.Decimal `json:"hours" validate:"gt=0"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
}

type NewLoggedService struct {
	Date        time.Time       `json:"date" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitRate    decimal.Decimal `json:"unit_rate" validate:"gte=0"`
}

// NewDisbursement takes the gross amount from the supplier document. VATTreatment, when
// set, overrides the suggestion of the type.
type NewDisbursement struct {
	DisbursementTypeId int                  `json:"disbursement_type_id" validate:"required,gt=0"`
	Date               time.Time            `json:"date" validate:"required"`
	Description        string               `json:"description" validate:"required"`
	Amount             decimal.Decimal      `json:"amount" validate:"gt=0"`
	VATTreatment       *models.VATTreatment `json:"vat_treatment"`
	Reason             string               `json:"reason"`
}

func newBase(matter *models.Matter, date time.Time, description string, amount decimal.Decimal) models.LineItemBase {
	return models.LineItemBase{
		MatterId:    matter.ID,
		AdvocateId:  matter.AdvocateId,
		Date:        utils.DateOnly(date),
		Description: strings.TrimSpace(description),
		Amount:      utils.RoundMoney(amount),
	}
}

func (a *FeeAggregator) CreateTimeEntry(ctx context.Context, matterId int, input NewTimeEntry) (*models.TimeEntry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	matter, err := models.GetOwnedMatter(ctx, a.DB, matterId)
	if err != nil {
		return nil, err
	}
	entry := models.TimeEntry{
		LineItemBase: newBase(matter, input.Date, input.Description, input.Hours.Mul(input.Rate)),
		Hours:        input.Hours,
		Rate:         input.Rate,
	}
	if err := a.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		config.LogError(a.Logger, "feeAggregator.go", "CreateTimeEntry", "Create", input, err)
		return nil, err
	}
	return &entry, nil
}

func (a *FeeAggregator) CreateLoggedService(ctx context.Context, matterId int, input NewLoggedService) (*models.LoggedService, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	matter, err := models.GetOwnedMatter(ctx, a.DB, matterId)
	if err != nil {
		return nil, err
	}
	svc := models.LoggedService{
		LineItemBase: newBase(matter, input.Date, input.Description, input.Quantity.Mul(input.UnitRate)),
		Quantity:     input.Quantity,
		UnitRate:     input.UnitRate,
	}
	if err := a.DB.WithContext(ctx).Create(&svc).Error; err != nil {
		config.LogError(a.Logger, "feeAggregator.go", "CreateLoggedService", "Create", input, err)
		return nil, err
	}
	return &svc, nil
}

// resolveTreatment picks the treatment for a disbursement: the explicit override when
// given and allowed, otherwise the suggestion.
func resolveTreatment(suggestion VATSuggestion, override *models.VATTreatment) (models.VATTreatment, error) {
	if override == nil {
		return suggestion.SuggestedTreatment, nil
	}
	treatment, err := models.ParseVATTreatment(string(*override))
	if err != nil {
		return "", err
	}
	if !suggestion.CanOverride && treatment != suggestion.SuggestedTreatment {
		return "", utils.NewComplianceError("disbursement type requires %s; the treatment cannot be overridden", suggestion.SuggestedTreatment)
	}
	return treatment, nil
}

func (a *FeeAggregator) CreateDisbursement(ctx context.Context, matterId int, input NewDisbursement) (*models.Disbursement, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	matter, err := models.GetOwnedMatter(ctx, a.DB, matterId)
	if err != nil {
		return nil, err
	}
	dtype, err := models.GetDisbursementTypeForCaller(ctx, a.DB, input.DisbursementTypeId)
	if err != nil {
		return nil, err
	}
	amount := utils.RoundMoney(input.Amount)
	suggestion := SuggestVATForRule(dtype.VATRule, dtype.VATRate, amount)
	treatment, err := resolveTreatment(suggestion, input.VATTreatment)
	if err != nil {
		return nil, err
	}

	d := models.Disbursement{
		LineItemBase:       newBase(matter, input.Date, input.Description, amount),
		DisbursementTypeId: dtype.ID,
		VATTreatment:       treatment,
		VATAmount:          applyTreatment(treatment, dtype.VATRate, amount),
		VATOverridden:      treatment != suggestion.SuggestedTreatment,
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = suggestion.Explanation
	}
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&d).Error; err != nil {
			return err
		}
		return models.AppendVATAudit(tx, &models.VATAuditRecord{
			DisbursementId:     d.ID,
			AdvocateId:         d.AdvocateId,
			Category:           dtype.Category,
			Action:             models.VATAuditActionCreated,
			NewTreatment:       d.VATTreatment,
			SuggestedTreatment: suggestion.SuggestedTreatment,
			NewVATAmount:       d.VATAmount,
			Amount:             d.Amount,
			Reason:             reason,
			Actor:              utils.Actor(ctx),
		})
	})
	if err != nil {
		config.LogError(a.Logger, "feeAggregator.go", "CreateDisbursement", "Transaction", input, err)
		return nil, err
	}
	return &d, nil
}

func frozenError(what string, id int) error {
	return utils.NewComplianceError("%s %d is billed and can no longer be changed", what, id)
}

func (a *FeeAggregator) UpdateTimeEntry(ctx context.Context, id int, input NewTimeEntry) (*models.TimeEntry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	entry, err := models.FetchOwnedTimeEntry(ctx, a.DB, id)
	if err != nil {
		return nil, err
	}
	if entry.IsFrozen() {
		return nil, frozenError("time entry", id)
	}
	amount := utils.RoundMoney(input.Hours.Mul(input.Rate))
	ok, err := models.UpdateUnbilled(a.DB.WithContext(ctx), models.LineItemTypeTimeEntry, id, map[string]interface{}{
		"date":        utils.DateOnly(input.Date),
		"description": strings.TrimSpace(input.Description),
		"hours":       input.Hours,
		"rate":        input.Rate,
		"amount":      amount,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, frozenError("time entry", id)
	}
	entry.Date, entry.Description = utils.DateOnly(input.Date), strings.TrimSpace(input.Description)
	entry.Hours, entry.Rate, entry.Amount = input.Hours, input.Rate, amount
	return entry, nil
}

func (a *FeeAggregator) UpdateLoggedService(ctx context.Context, id int, input NewLoggedService) (*models.LoggedService, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	svc, err := models.FetchOwnedLoggedService(ctx, a.DB, id)
	if err != nil {
		return nil, err
	}
	if svc.IsFrozen() {
		return nil, frozenError("logged service", id)
	}
	amount := utils.RoundMoney(input.Quantity.Mul(input.UnitRate))
	ok, err := models.UpdateUnbilled(a.DB.WithContext(ctx), models.LineItemTypeLoggedService, id, map[string]interface{}{
		"date":        utils.DateOnly(input.Date),
		"description": strings.TrimSpace(input.Description),
		"quantity":    input.Quantity,
		"unit_rate":   input.UnitRate,
		"amount":      amount,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, frozenError("logged service", id)
	}
	svc.Date, svc.Description = utils.DateOnly(input.Date), strings.TrimSpace(input.Description)
	svc.Quantity, svc.UnitRate, svc.Amount = input.Quantity, input.UnitRate, amount
	return svc, nil
}

// UpdateDisbursement edits an unbilled disbursement and re-evaluates its VAT. An earlier
// override survives the edit unless a new treatment is given or the type forbids it.
func (a *FeeAggregator) UpdateDisbursement(ctx context.Context, id int, input NewDisbursement) (*models.Disbursement, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	d, err := models.FetchOwnedDisbursement(ctx, a.DB, id)
	if err != nil {
		return nil, err
	}
	if d.IsFrozen() {
		return nil, frozenError("disbursement", id)
	}
	dtype, err := models.GetDisbursementTypeForCaller(ctx, a.DB, input.DisbursementTypeId)
	if err != nil {
		return nil, err
	}
	amount := utils.RoundMoney(input.Amount)
	suggestion := SuggestVATForRule(dtype.VATRule, dtype.VATRate, amount)
	override := input.VATTreatment
	if override == nil && d.VATOverridden && suggestion.CanOverride {
		kept := d.VATTreatment
		override = &kept
	}
	treatment, err := resolveTreatment(suggestion, override)
	if err != nil {
		return nil, err
	}
	vat := applyTreatment(treatment, dtype.VATRate, amount)
	overridden := treatment != suggestion.SuggestedTreatment

	oldTreatment, oldVAT := d.VATTreatment, d.VATAmount
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := models.UpdateUnbilled(tx, models.LineItemTypeDisbursement, id, map[string]interface{}{
			"disbursement_type_id": dtype.ID,
			"date":                 utils.DateOnly(input.Date),
			"description":          strings.TrimSpace(input.Description),
			"amount":               amount,
			"vat_treatment":        treatment,
			"vat_amount":           vat,
			"vat_overridden":       overridden,
		})
		if err != nil {
			return err
		}
		if !ok {
			return frozenError("disbursement", id)
		}
		if treatment == oldTreatment && vat.Equal(oldVAT) {
			return nil
		}
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = "disbursement edited"
		}
		return models.AppendVATAudit(tx, &models.VATAuditRecord{
			DisbursementId:     d.ID,
			AdvocateId:         d.AdvocateId,
			Category:           dtype.Category,
			Action:             models.VATAuditActionVATChanged,
			OldTreatment:       &oldTreatment,
			NewTreatment:       treatment,
			SuggestedTreatment: suggestion.SuggestedTreatment,
			OldVATAmount:       oldVAT,
			NewVATAmount:       vat,
			Amount:             amount,
			Reason:             reason,
			Actor:              utils.Actor(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	d.DisbursementTypeId = dtype.ID
	d.Date, d.Description, d.Amount = utils.DateOnly(input.Date), strings.TrimSpace(input.Description), amount
	d.VATTreatment, d.VATAmount, d.VATOverridden = treatment, vat, overridden
	return d, nil
}

// DeleteLineItem removes an unbilled item. Billed items are part of an invoice and stay.
func (a *FeeAggregator) DeleteLineItem(ctx context.Context, kind models.LineItemType, id int) error {
	var frozen bool
	switch kind {
	case models.LineItemTypeTimeEntry:
		item, err := models.FetchOwnedTimeEntry(ctx, a.DB, id)
		if err != nil {
			return err
		}
		frozen = item.IsFrozen()
	case models.LineItemTypeLoggedService:
		item, err := models.FetchOwnedLoggedService(ctx, a.DB, id)
		if err != nil {
			return err
		}
		frozen = item.IsFrozen()
	case models.LineItemTypeDisbursement:
		item, err := models.FetchOwnedDisbursement(ctx, a.DB, id)
		if err != nil {
			return err
		}
		frozen = item.IsFrozen()
	default:
		return utils.NewValidationError("invalid line item type %q", kind)
	}
	if frozen {
		return frozenError(string(kind), id)
	}
	ok, err := models.DeleteUnbilled(a.DB.WithContext(ctx), kind, id)
	if err != nil {
		config.LogError(a.Logger, "feeAggregator.go", "DeleteLineItem", "DeleteUnbilled", id, err)
		return err
	}
	if !ok {
		return frozenError(string(kind), id)
	}
	return nil
}

type UnbilledItems struct {
	TimeEntries    []*models.TimeEntry     `json:"time_entries"`
	LoggedServices []*models.LoggedService `json:"logged_services"`
	Disbursements  []*models.Disbursement  `json:"disbursements"`
}

func (u UnbilledItems) Refs() []models.LineItemRef {
	refs := make([]models.LineItemRef, 0, len(u.TimeEntries)+len(u.LoggedServices)+len(u.Disbursements))
	for _, t := range u.TimeEntries {
		refs = append(refs, models.LineItemRef{Type: models.LineItemTypeTimeEntry, ID: t.ID})
	}
	for _, s := range u.LoggedServices {
		refs = append(refs, models.LineItemRef{Type: models.LineItemTypeLoggedService, ID: s.ID})
	}
	for _, d := range u.Disbursements {
		refs = append(refs, models.LineItemRef{Type: models.LineItemTypeDisbursement, ID: d.ID})
	}
	return refs
}

// firstFrozen returns the first item already attached to an invoice.
func (u UnbilledItems) firstFrozen() (models.LineItemRef, bool) {
	for _, t := range u.TimeEntries {
		if t.IsFrozen() {
			return models.LineItemRef{Type: models.LineItemTypeTimeEntry, ID: t.ID}, true
		}
	}
	for _, s := range u.LoggedServices {
		if s.IsFrozen() {
			return models.LineItemRef{Type: models.LineItemTypeLoggedService, ID: s.ID}, true
		}
	}
	for _, d := range u.Disbursements {
		if d.IsFrozen() {
			return models.LineItemRef{Type: models.LineItemTypeDisbursement, ID: d.ID}, true
		}
	}
	return models.LineItemRef{}, false
}

func (u UnbilledItems) Empty() bool {
	return len(u.TimeEntries) == 0 && len(u.LoggedServices) == 0 && len(u.Disbursements) == 0
}

func (a *FeeAggregator) ListUnbilled(ctx context.Context, matterId int) (*UnbilledItems, error) {
	if _, err := models.GetOwnedMatter(ctx, a.DB, matterId); err != nil {
		return nil, err
	}
	return listUnbilled(a.DB.WithContext(ctx), matterId)
}

func listUnbilled(tx *gorm.DB, matterId int) (*UnbilledItems, error) {
	var out UnbilledItems
	var err error
	if out.TimeEntries, err = models.ListUnbilledOf[models.TimeEntry](tx, matterId); err != nil {
		return nil, err
	}
	if out.LoggedServices, err = models.ListUnbilledOf[models.LoggedService](tx, matterId); err != nil {
		return nil, err
	}
	if out.Disbursements, err = models.ListUnbilledOf[models.Disbursement](tx, matterId); err != nil {
		return nil, err
	}
	return &out, nil
}

// loadSelected loads explicitly selected items whether billed or not, so a stale selection
// surfaces as a conflict at freeze time. Ids of another matter are NotFound; ids that no
// longer exist mean the selection is stale and the caller must re-select.
func loadSelected(tx *gorm.DB, matterId int, refs []models.LineItemRef) (*UnbilledItems, error) {
	grouped, err := models.GroupRefs(refs)
	if err != nil {
		return nil, err
	}
	var out UnbilledItems
	if out.TimeEntries, err = models.FindByIdsOf[models.TimeEntry](tx, matterId, grouped[models.LineItemTypeTimeEntry]); err != nil {
		return nil, err
	}
	if out.LoggedServices, err = models.FindByIdsOf[models.LoggedService](tx, matterId, grouped[models.LineItemTypeLoggedService]); err != nil {
		return nil, err
	}
	if out.Disbursements, err = models.FindByIdsOf[models.Disbursement](tx, matterId, grouped[models.LineItemTypeDisbursement]); err != nil {
		return nil, err
	}
	for _, t := range models.LineItemTypes() {
		want := len(grouped[t])
		got := 0
		switch t {
		case models.LineItemTypeTimeEntry:
			got = len(out.TimeEntries)
		case models.LineItemTypeLoggedService:
			got = len(out.LoggedServices)
		case models.LineItemTypeDisbursement:
			got = len(out.Disbursements)
		}
		if got == want {
			continue
		}
		foreign, err := models.CountOnOtherMatters(tx, t, grouped[t], matterId)
		if err != nil {
			return nil, err
		}
		if foreign > 0 {
			return nil, utils.NewNotFoundError("%d selected %s items not found on matter %d", foreign, t, matterId)
		}
		return nil, utils.NewConcurrencyConflictError("%d selected %s items no longer exist, re-select and retry", want-got, t)
	}
	return &out, nil
}
