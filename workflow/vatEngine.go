package workflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VATEngine suggests VAT treatment for disbursements and keeps the VAT audit trail.
type VATEngine struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewVATEngine(db *gorm.DB, logger *logrus.Logger) *VATEngine {
	return &VATEngine{DB: db, Logger: logger}
}

func (e *VATEngine) SuggestVAT(ctx context.Context, typeId int, amount decimal.Decimal) (*VATSuggestion, error) {
	if err := utils.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	t, err := models.GetDisbursementTypeForCaller(ctx, e.DB, typeId)
	if err != nil {
		return nil, err
	}
	s := SuggestVATForRule(t.VATRule, t.VATRate, amount)
	return &s, nil
}

func (e *VATEngine) ListDisbursementTypes(ctx context.Context) ([]*models.DisbursementType, error) {
	return models.ListDisbursementTypes(ctx, e.DB)
}

func (e *VATEngine) CreateCustomType(ctx context.Context, input models.NewDisbursementType) (*models.DisbursementType, error) {
	return models.CreateDisbursementType(ctx, e.DB, input)
}

func (e *VATEngine) UpdateCustomType(ctx context.Context, id int, input models.NewDisbursementType) (*models.DisbursementType, error) {
	return models.UpdateDisbursementType(ctx, e.DB, id, input)
}

func (e *VATEngine) DeleteCustomType(ctx context.Context, id int) (*models.DisbursementType, error) {
	return models.DeleteDisbursementType(ctx, e.DB, id)
}

// suggestionFor evaluates the rule of the disbursement's type. A type that vanished is
// treated as having no rule.
func suggestionFor(tx *gorm.DB, typeId int, amount decimal.Decimal) (VATSuggestion, *models.DisbursementType, error) {
	var t models.DisbursementType
	if err := tx.First(&t, typeId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SuggestVATForRule("", decimal.Zero, amount), nil, nil
		}
		return VATSuggestion{}, nil, err
	}
	return SuggestVATForRule(t.VATRule, t.VATRate, amount), &t, nil
}

func typeCategory(t *models.DisbursementType) string {
	if t == nil {
		return ""
	}
	return t.Category
}

func typeRate(t *models.DisbursementType) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return t.VATRate
}

// CorrectVATTreatment changes the VAT treatment of a disbursement, billed or not, and
// records why. Only VAT fields are touched. When the disbursement is on an invoice and
// regenerateInvoice is set, the invoice is flagged for regeneration.
func (e *VATEngine) CorrectVATTreatment(ctx context.Context, disbursementId int, rawTreatment string, reason string, regenerateInvoice bool) (*models.Disbursement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.NewValidationError("a reason is required to correct VAT treatment")
	}
	treatment, err := models.ParseVATTreatment(rawTreatment)
	if err != nil {
		return nil, err
	}
	if _, err := models.FetchOwnedDisbursement(ctx, e.DB, disbursementId); err != nil {
		return nil, err
	}

	var result models.Disbursement
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&result, disbursementId).Error; err != nil {
			return utils.NotFoundOr(err, "disbursement", disbursementId)
		}
		suggestion, dtype, err := suggestionFor(tx, result.DisbursementTypeId, result.Amount)
		if err != nil {
			return err
		}
		if !suggestion.CanOverride && treatment != suggestion.SuggestedTreatment {
			return utils.NewComplianceError("disbursement type requires %s; the treatment cannot be overridden", suggestion.SuggestedTreatment)
		}

		oldTreatment := result.VATTreatment
		oldVAT := result.VATAmount
		newVAT := applyTreatment(treatment, typeRate(dtype), result.Amount)
		overridden := treatment != suggestion.SuggestedTreatment

		regenerate := regenerateInvoice && result.InvoiceId != nil
		if regenerate {
			billedOn, err := models.LockInvoice(tx, *result.InvoiceId)
			if err != nil {
				return err
			}
			if billedOn.Status.IsTerminal() {
				return utils.NewComplianceError("invoice %s is %s and cannot be regenerated", billedOn.InvoiceNumber, billedOn.Status)
			}
		}

		if err := tx.Model(&models.Disbursement{}).Where("id = ?", result.ID).Updates(map[string]interface{}{
			"vat_treatment":  treatment,
			"vat_amount":     newVAT,
			"vat_overridden": overridden,
		}).Error; err != nil {
			return err
		}

		flagged := false
		if regenerate {
			if err := tx.Model(&models.Invoice{}).Where("id = ?", *result.InvoiceId).
				Update("needs_regeneration", true).Error; err != nil {
				return err
			}
			flagged = true
		}

		action := models.VATAuditActionCorrected
		if overridden {
			action = models.VATAuditActionOverridden
		}
		if err := models.AppendVATAudit(tx, &models.VATAuditRecord{
			DisbursementId:             result.ID,
			AdvocateId:                 result.AdvocateId,
			Category:                   typeCategory(dtype),
			Action:                     action,
			OldTreatment:               &oldTreatment,
			NewTreatment:               treatment,
			SuggestedTreatment:         suggestion.SuggestedTreatment,
			OldVATAmount:               oldVAT,
			NewVATAmount:               newVAT,
			Amount:                     result.Amount,
			Reason:                     reason,
			Actor:                      utils.Actor(ctx),
			InvoiceId:                  result.InvoiceId,
			InvoiceRegenerationFlagged: flagged,
		}); err != nil {
			return err
		}

		result.VATTreatment = treatment
		result.VATAmount = newVAT
		result.VATOverridden = overridden
		return nil
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindInternal {
			config.LogError(e.Logger, "vatEngine.go", "CorrectVATTreatment", "Transaction", disbursementId, err)
		}
		return nil, err
	}
	return &result, nil
}

func (e *VATEngine) GetAuditLogForDisbursement(ctx context.Context, disbursementId int) ([]*models.VATAuditRecord, error) {
	d, err := models.FetchOwnedDisbursement(ctx, e.DB, disbursementId)
	if err != nil {
		return nil, err
	}
	return models.ListVATAuditForDisbursement(ctx, e.DB, d.AdvocateId, d.ID)
}

// auditWindow turns inclusive calendar dates into a half-open [from, to+1d) range.
func auditWindow(from, to time.Time) (time.Time, time.Time, error) {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if to.Before(from) {
		return time.Time{}, time.Time{}, utils.NewValidationError("date range end is before its start")
	}
	return from, utils.AddDays(to, 1), nil
}

func (e *VATEngine) GetAuditLog(ctx context.Context, from, to time.Time) ([]*models.VATAuditRecord, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := auditWindow(from, to)
	if err != nil {
		return nil, err
	}
	return models.ListVATAudit(ctx, e.DB, advocateId, start, end)
}

type VATCategoryStatistics struct {
	Category       string          `json:"category"`
	Count          int64           `json:"count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalVAT       decimal.Decimal `json:"total_vat"`
	InclusiveCount int64           `json:"inclusive_count"`
	ExemptCount    int64           `json:"exempt_count"`
	OverrideCount  int64           `json:"override_count"`
}

// GetVATStatistics aggregates the caller's disbursements dated in [from, to] by category.
func (e *VATEngine) GetVATStatistics(ctx context.Context, from, to time.Time) ([]*VATCategoryStatistics, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := auditWindow(from, to)
	if err != nil {
		return nil, err
	}

	var results []*VATCategoryStatistics
	err = e.DB.WithContext(ctx).
		Table("disbursements AS d").
		Select(`COALESCE(t.category, '') AS category,
			COUNT(d.id) AS count,
			COALESCE(SUM(d.amount), 0) AS total_amount,
			COALESCE(SUM(d.vat_amount), 0) AS total_vat,
			COALESCE(SUM(CASE WHEN d.vat_treatment = ? THEN 1 ELSE 0 END), 0) AS inclusive_count,
			COALESCE(SUM(CASE WHEN d.vat_treatment = ? THEN 1 ELSE 0 END), 0) AS exempt_count,
			COALESCE(SUM(CASE WHEN d.vat_overridden THEN 1 ELSE 0 END), 0) AS override_count`,
			models.VATTreatmentInclusive, models.VATTreatmentExempt).
		Joins("LEFT JOIN disbursement_types t ON t.id = d.disbursement_type_id").
		Where("d.advocate_id = ? AND d.date >= ? AND d.date < ?", advocateId, start, end).
		Group("t.category").
		Order("category").
		Scan(&results).Error
	if err != nil {
		config.LogError(e.Logger, "vatEngine.go", "GetVATStatistics", "Scan", advocateId, err)
		return nil, err
	}
	for _, r := range results {
		r.TotalAmount = utils.RoundMoney(r.TotalAmount)
		r.TotalVAT = utils.RoundMoney(r.TotalVAT)
	}
	return results, nil
}

var auditExportHeaders = []string{
	"Date", "Disbursement", "Category", "Action", "Old treatment", "New treatment", "Suggested",
	"Old VAT", "New VAT", "Amount", "Reason", "Actor", "Invoice", "Regeneration flagged",
}

// ExportAuditLog writes the caller's audit rows and per category statistics for [from, to]
// as an XLSX workbook.
func (e *VATEngine) ExportAuditLog(ctx context.Context, from, to time.Time, w io.Writer) error {
	records, err := e.GetAuditLog(ctx, from, to)
	if err != nil {
		return err
	}
	stats, err := e.GetVATStatistics(ctx, from, to)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const auditSheet = "VAT Audit"
	const statsSheet = "Statistics"
	if err := f.SetSheetName("Sheet1", auditSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return err
	}

	if err := writeRow(f, auditSheet, 1, toCells(auditExportHeaders)); err != nil {
		return err
	}
	for i, r := range records {
		var invoice interface{} = ""
		if r.InvoiceId != nil {
			invoice = *r.InvoiceId
		}
		old := ""
		if r.OldTreatment != nil {
			old = string(*r.OldTreatment)
		}
		row := []interface{}{
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.DisbursementId, r.Category, string(r.Action),
			old, string(r.NewTreatment), string(r.SuggestedTreatment),
			r.OldVATAmount.InexactFloat64(), r.NewVATAmount.InexactFloat64(), r.Amount.InexactFloat64(),
			r.Reason, r.Actor, invoice, r.InvoiceRegenerationFlagged,
		}
		if err := writeRow(f, auditSheet, i+2, row); err != nil {
			return err
		}
	}

	statsHeaders := []string{"Category", "Count", "Total amount", "Total VAT", "Inclusive", "Exempt", "Overridden"}
	if err := writeRow(f, statsSheet, 1, toCells(statsHeaders)); err != nil {
		return err
	}
	for i, s := range stats {
		row := []interface{}{
			s.Category, s.Count, s.TotalAmount.InexactFloat64(), s.TotalVAT.InexactFloat64(),
			s.InclusiveCount, s.ExemptCount, s.OverrideCount,
		}
		if err := writeRow(f, statsSheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(auditSheet, "A", "A", 20)
	_ = f.SetColWidth(auditSheet, "K", "K", 40)

	if err := f.Write(w); err != nil {
		config.LogError(e.Logger, "vatEngine.go", "ExportAuditLog", "Write", nil, err)
		return err
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
