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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "github.com/NathiDhliso/Lexo-sub007/workflow"

// InvoiceService drives invoices through their lifecycle.
type InvoiceService struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Registry *models.JurisdictionRegistry
	Notifier Notifier
	Tracer   trace.Tracer
	Now      func() time.Time
}

func NewInvoiceService(db *gorm.DB, logger *logrus.Logger, registry *models.JurisdictionRegistry, notifier Notifier) *InvoiceService {
	return &InvoiceService{
		DB:       db,
		Logger:   logger,
		Registry: registry,
		Notifier: notifier,
		Tracer:   otel.Tracer(tracerName),
		Now:      time.Now,
	}
}

// LineItemSelector picks what goes on an invoice: every unbilled item, or exactly Items.
type LineItemSelector struct {
	All   bool                 `json:"all"`
	Items []models.LineItemRef `json:"items"`
}

type GenerateOptions struct {
	IsProForma bool `json:"is_pro_forma"`
}

type PaymentInput struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Date      time.Time       `json:"date"`
	Method    string          `json:"method" validate:"required,max=50"`
	Reference string          `json:"reference" validate:"max=255"`
}

type invoiceTotals struct {
	Fees          decimal.Decimal
	VAT           decimal.Decimal
	Disbursements decimal.Decimal
	Total         decimal.Decimal
}

// computeTotals applies the VAT convention: VAT is added on net fees only, disbursements
// enter the total at their gross amount.
func computeTotals(items *UnbilledItems, vatRate decimal.Decimal) invoiceTotals {
	fees := decimal.Zero
	for _, t := range items.TimeEntries {
		fees = fees.Add(t.Amount)
	}
	for _, s := range items.LoggedServices {
		fees = fees.Add(s.Amount)
	}
	disbursements := decimal.Zero
	for _, d := range items.Disbursements {
		disbursements = disbursements.Add(d.Amount)
	}
	fees = utils.RoundMoney(fees)
	disbursements = utils.RoundMoney(disbursements)
	vat := utils.AddExclusiveVAT(fees, vatRate)
	return invoiceTotals{
		Fees:          fees,
		VAT:           vat,
		Disbursements: disbursements,
		Total:         fees.Add(vat).Add(disbursements),
	}
}

func invoiceItemsFrom(items *UnbilledItems) []models.InvoiceItem {
	out := make([]models.InvoiceItem, 0, len(items.TimeEntries)+len(items.LoggedServices)+len(items.Disbursements))
	for _, t := range items.TimeEntries {
		out = append(out, models.InvoiceItem{
			ItemType: models.LineItemTypeTimeEntry, ItemId: t.ID, Description: t.Description,
			Quantity: t.Hours, Rate: t.Rate, Amount: t.Amount,
		})
	}
	for _, s := range items.LoggedServices {
		out = append(out, models.InvoiceItem{
			ItemType: models.LineItemTypeLoggedService, ItemId: s.ID, Description: s.Description,
			Quantity: s.Quantity, Rate: s.UnitRate, Amount: s.Amount,
		})
	}
	for _, d := range items.Disbursements {
		out = append(out, models.InvoiceItem{
			ItemType: models.LineItemTypeDisbursement, ItemId: d.ID, Description: d.Description,
			Quantity: decimal.NewFromInt(1), Rate: d.Amount, Amount: d.Amount,
		})
	}
	return out
}

func (s *InvoiceService) today() time.Time {
	return utils.DateOnly(s.Now())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(utils.KindOf(err)))
	}
	span.End()
}

// GenerateInvoice builds an invoice for a matter from the selected line items. A final
// invoice freezes its items in the same transaction; a pro forma only records them.
func (s *InvoiceService) GenerateInvoice(ctx context.Context, matterId int, selector LineItemSelector, opts GenerateOptions) (inv *models.Invoice, err error) {
	ctx, span := s.Tracer.Start(ctx, "InvoiceService.GenerateInvoice",
		trace.WithAttributes(attribute.Int("matter.id", matterId), attribute.Bool("invoice.pro_forma", opts.IsProForma)))
	defer func() { endSpan(span, err) }()

	if selector.All && len(selector.Items) > 0 {
		return nil, utils.NewValidationError("select all items or a list of items, not both")
	}
	if !selector.All && len(selector.Items) == 0 {
		return nil, utils.NewNothingToInvoiceError("no line items selected")
	}
	matter, err := models.GetOwnedMatter(ctx, s.DB, matterId)
	if err != nil {
		return nil, err
	}
	rules, err := s.Registry.Lookup(matter.Bar)
	if err != nil {
		return nil, err
	}

	issueDate := s.today()
	prefix, status := rules.InvoicePrefix, models.InvoiceStatusDraft
	if opts.IsProForma {
		prefix, status = models.ProFormaPrefix(rules.InvoicePrefix), models.InvoiceStatusProForma
	}

	var created models.Invoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items *UnbilledItems
		var err error
		if selector.All {
			items, err = listUnbilled(tx, matterId)
		} else {
			items, err = loadSelected(tx, matterId, selector.Items)
		}
		if err != nil {
			return err
		}
		if items.Empty() {
			return utils.NewNothingToInvoiceError("matter %d has no unbilled work", matterId)
		}
		// A pro forma freezes nothing, so billed work has to be refused here.
		if ref, frozen := items.firstFrozen(); opts.IsProForma && frozen {
			return utils.NewConcurrencyConflictError("%s %d is already billed, re-select and retry", ref.Type, ref.ID)
		}

		number, err := models.NextInvoiceNumber(tx, prefix, issueDate)
		if err != nil {
			return err
		}
		totals := computeTotals(items, rules.VATRate)
		created = models.Invoice{
			AdvocateId:          matter.AdvocateId,
			MatterId:            matter.ID,
			Bar:                 rules.Bar,
			InvoiceNumber:       number,
			IssueDate:           issueDate,
			DueDate:             rules.DueDate(issueDate),
			FeesAmount:          totals.Fees,
			VATRate:             rules.VATRate,
			VATAmount:           totals.VAT,
			DisbursementsAmount: totals.Disbursements,
			TotalAmount:         totals.Total,
			Status:              status,
			FeeNarrative:        BuildFeeNarrative(items.TimeEntries, items.LoggedServices),
			IsProForma:          opts.IsProForma,
			Items:               invoiceItemsFrom(items),
		}
		if !opts.IsProForma {
			created.NextReminderDate = rules.ReminderDate(issueDate, 0)
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		if opts.IsProForma {
			return nil
		}
		return FreezeLineItems(tx, items.Refs(), matterId, created.ID)
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(s.Logger, "invoiceWorkflow.go", "GenerateInvoice", "Transaction", matterId, err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("invoice.number", created.InvoiceNumber))

	if created.IsProForma {
		s.notify(ctx, NotificationProFormaQuote, &created, matter)
	}
	return &created, nil
}

// ConvertProFormaToFinal issues a final invoice carrying the pro forma's amounts and
// narrative, and freezes the items the pro forma was computed from. The pro forma is kept
// and marked converted.
func (s *InvoiceService) ConvertProFormaToFinal(ctx context.Context, proFormaId int) (*models.Invoice, error) {
	pf, err := models.GetOwnedInvoice(ctx, s.DB, proFormaId)
	if err != nil {
		return nil, err
	}
	if pf.Status != models.InvoiceStatusProForma {
		return nil, utils.NewInvalidStateTransitionError(string(pf.Status), string(models.InvoiceStatusConverted))
	}
	rules, err := s.Registry.Lookup(pf.Bar)
	if err != nil {
		return nil, err
	}

	issueDate := s.today()
	var final models.Invoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockInvoice(tx, proFormaId)
		if err != nil {
			return err
		}
		if locked.Status != models.InvoiceStatusProForma {
			return utils.NewInvalidStateTransitionError(string(locked.Status), string(models.InvoiceStatusConverted))
		}
		var pfItems []models.InvoiceItem
		if err := tx.Where("invoice_id = ?", proFormaId).Order("id").Find(&pfItems).Error; err != nil {
			return err
		}
		if len(pfItems) == 0 {
			return utils.NewNothingToInvoiceError("pro forma %s has no line items", locked.InvoiceNumber)
		}

		number, err := models.NextInvoiceNumber(tx, rules.InvoicePrefix, issueDate)
		if err != nil {
			return err
		}
		items := make([]models.InvoiceItem, len(pfItems))
		refs := make([]models.LineItemRef, len(pfItems))
		for i, it := range pfItems {
			it.ID, it.InvoiceId = 0, 0
			items[i] = it
			refs[i] = it.Ref()
		}
		final = models.Invoice{
			AdvocateId:          locked.AdvocateId,
			MatterId:            locked.MatterId,
			Bar:                 locked.Bar,
			InvoiceNumber:       number,
			IssueDate:           issueDate,
			DueDate:             rules.DueDate(issueDate),
			FeesAmount:          locked.FeesAmount,
			VATRate:             locked.VATRate,
			VATAmount:           locked.VATAmount,
			DisbursementsAmount: locked.DisbursementsAmount,
			TotalAmount:         locked.TotalAmount,
			Status:              models.InvoiceStatusDraft,
			NextReminderDate:    rules.ReminderDate(issueDate, 0),
			FeeNarrative:        locked.FeeNarrative,
			ConvertedFromId:     &locked.ID,
			Items:               items,
		}
		if err := tx.Create(&final).Error; err != nil {
			return err
		}
		if err := FreezeLineItems(tx, refs, locked.MatterId, final.ID); err != nil {
			return err
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", locked.ID, models.InvoiceStatusProForma).
			Updates(map[string]interface{}{
				"status":          models.InvoiceStatusConverted,
				"converted_to_id": final.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return utils.NewConcurrencyConflictError("pro forma %s was converted concurrently", locked.InvoiceNumber)
		}
		return nil
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(s.Logger, "invoiceWorkflow.go", "ConvertProFormaToFinal", "Transaction", proFormaId, err)
		}
		return nil, err
	}
	return &final, nil
}

// UpdateStatus moves an invoice along the lifecycle table.
func (s *InvoiceService) UpdateStatus(ctx context.Context, invoiceId int, rawStatus string) (*models.Invoice, error) {
	target, err := models.ParseInvoiceStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	inv, err := models.GetOwnedInvoice(ctx, s.DB, invoiceId)
	if err != nil {
		return nil, err
	}
	if target == models.InvoiceStatusConverted {
		return nil, utils.NewInvalidStateTransitionError(string(inv.Status), string(target))
	}

	now := s.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockInvoice(tx, invoiceId)
		if err != nil {
			return err
		}
		if !models.CanTransition(locked.Status, target) {
			return utils.NewInvalidStateTransitionError(string(locked.Status), string(target))
		}
		changes := map[string]interface{}{"status": target}
		switch target {
		case models.InvoiceStatusSent:
			changes["sent_at"] = now
		case models.InvoiceStatusPaid:
			changes["date_paid"] = utils.DateOnly(now)
			changes["amount_paid"] = locked.TotalAmount
			changes["next_reminder_date"] = nil
		case models.InvoiceStatusWrittenOff:
			changes["next_reminder_date"] = nil
		}
		return tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", locked.ID, locked.Status).
			Updates(changes).Error
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(s.Logger, "invoiceWorkflow.go", "UpdateStatus", "Transaction", invoiceId, err)
		}
		return nil, err
	}

	updated, err := models.GetOwnedInvoice(ctx, s.DB, invoiceId)
	if err != nil {
		return nil, err
	}
	if target == models.InvoiceStatusSent {
		s.notify(ctx, NotificationInvoiceIssued, updated, nil)
	}
	return updated, nil
}

// RecordPayment appends a payment and settles the invoice once payments cover the total.
func (s *InvoiceService) RecordPayment(ctx context.Context, invoiceId int, input PaymentInput) (*models.Invoice, error) {
	input.Method = strings.TrimSpace(input.Method)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, err := models.GetOwnedInvoice(ctx, s.DB, invoiceId); err != nil {
		return nil, err
	}
	paidOn := s.today()
	if !input.Date.IsZero() {
		paidOn = utils.DateOnly(input.Date)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockInvoice(tx, invoiceId)
		if err != nil {
			return err
		}
		if !locked.Status.AcceptsPayment() {
			return utils.NewInvalidStateTransitionError(string(locked.Status), string(models.InvoiceStatusPaid))
		}
		payment := models.Payment{
			InvoiceId: locked.ID,
			Amount:    utils.RoundMoney(input.Amount),
			Date:      paidOn,
			Method:    input.Method,
			Reference: strings.TrimSpace(input.Reference),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		paid, err := models.SumPayments(tx, locked.ID)
		if err != nil {
			return err
		}
		paid = utils.RoundMoney(paid)
		changes := map[string]interface{}{"amount_paid": paid}
		if paid.GreaterThanOrEqual(locked.TotalAmount) {
			changes["status"] = models.InvoiceStatusPaid
			changes["date_paid"] = paidOn
			changes["next_reminder_date"] = nil
		}
		return tx.Model(&models.Invoice{}).Where("id = ?", locked.ID).Updates(changes).Error
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(s.Logger, "invoiceWorkflow.go", "RecordPayment", "Transaction", invoiceId, err)
		}
		return nil, err
	}
	return models.GetOwnedInvoice(ctx, s.DB, invoiceId)
}

func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceId int) (*models.Invoice, error) {
	return models.GetOwnedInvoice(ctx, s.DB, invoiceId)
}

func (s *InvoiceService) ListInvoices(ctx context.Context, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	return models.ListInvoices(ctx, s.DB, filter)
}

// notify sends a best-effort notification; delivery failures are logged, never returned.
func (s *InvoiceService) notify(ctx context.Context, kind NotificationKind, inv *models.Invoice, matter *models.Matter) {
	if s.Notifier == nil {
		return
	}
	if matter == nil {
		var m models.Matter
		if err := s.DB.WithContext(ctx).First(&m, inv.MatterId).Error; err != nil {
			config.LogError(s.Logger, "invoiceWorkflow.go", "notify", "load matter", inv.MatterId, err)
			return
		}
		matter = &m
	}
	res := s.Notifier.Notify(ctx, kind, notificationPayload(inv, matter))
	if !res.Success {
		config.LogError(s.Logger, "invoiceWorkflow.go", "notify", string(kind), inv.InvoiceNumber,
			utils.NewExternalServiceError(res.Error, "notification for invoice %s failed", inv.InvoiceNumber))
	}
}

func notificationPayload(inv *models.Invoice, matter *models.Matter) NotificationPayload {
	return NotificationPayload{
		AdvocateId:    inv.AdvocateId,
		InvoiceId:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientName:    matter.ClientName,
		ClientEmail:   matter.ClientEmail,
		TotalAmount:   inv.TotalAmount,
		Outstanding:   inv.Outstanding(),
		DueDate:       inv.DueDate,
	}
}
