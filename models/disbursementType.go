package models

import (
	"context"
	"errors"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DisbursementType carries the VAT rule for a kind of disbursement. System defaults have no
// owner and are read-only.
type DisbursementType struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AdvocateId      *string         `gorm:"size:64;index;default:null" json:"advocate_id"`
	Code            string          `gorm:"size:50;index" json:"code"`
	Name            string          `gorm:"size:100;not null" json:"name"`
	Category        string          `gorm:"size:50;not null;index" json:"category"`
	VATRule         VATRule         `gorm:"column:vat_treatment;size:20;not null" json:"vat_treatment"`
	VATRate         decimal.Decimal `gorm:"column:vat_rate;type:decimal(6,4);default:0" json:"vat_rate"`
	IsSystemDefault bool            `gorm:"not null;default:false" json:"is_system_default"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t DisbursementType) OwnerId() string { return utils.DereferencePtr(t.AdvocateId) }

type NewDisbursementType struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Category string          `json:"category" validate:"required,max=50"`
	VATRule  VATRule         `json:"vat_treatment" validate:"required"`
	VATRate  decimal.Decimal `json:"vat_rate" validate:"gte=0,lt=1"`
}

var standardVATRate = decimal.RequireFromString("0.15")

func systemDisbursementTypes() []DisbursementType {
	def := func(code, name, category string, rule VATRule) DisbursementType {
		rate := standardVATRate
		if rule == VATRuleNever {
			rate = decimal.Zero
		}
		return DisbursementType{Code: code, Name: name, Category: category, VATRule: rule, VATRate: rate, IsSystemDefault: true}
	}
	return []DisbursementType{
		def("court_fees", "Court fees", "court", VATRuleNever),
		def("sheriff_fees", "Sheriff fees", "court", VATRuleNever),
		def("revenue_stamps", "Revenue stamps", "court", VATRuleNever),
		def("counsel_fees", "Correspondent counsel fees", "professional", VATRuleSuggest),
		def("expert_witness", "Expert witness fees", "professional", VATRuleSuggestNot),
		def("travel", "Travel", "travel", VATRuleSuggest),
		def("accommodation", "Accommodation", "travel", VATRuleAlways),
		def("courier", "Courier", "office", VATRuleSuggest),
		def("photocopies", "Photocopies and printing", "office", VATRuleAlways),
	}
}

// SeedSystemDisbursementTypes inserts the default types that are not present yet.
func SeedSystemDisbursementTypes(tx *gorm.DB) error {
	for _, t := range systemDisbursementTypes() {
		var count int64
		if err := tx.Model(&DisbursementType{}).
			Where("code = ? AND is_system_default = ?", t.Code, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		row := t
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetDisbursementTypeForCaller loads a type the caller may use: a system default or one of
// their own custom types.
func GetDisbursementTypeForCaller(ctx context.Context, tx *gorm.DB, id int) (*DisbursementType, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	var t DisbursementType
	if err := tx.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, utils.NotFoundOr(err, "disbursement type", id)
	}
	if !t.IsSystemDefault && t.OwnerId() != advocateId {
		return nil, utils.NewUnauthorizedError("disbursement type %d belongs to another advocate", id)
	}
	return &t, nil
}

// getCustomTypeForChange loads a type for update or delete, refusing system defaults.
func getCustomTypeForChange(ctx context.Context, tx *gorm.DB, id int) (*DisbursementType, error) {
	t, err := GetDisbursementTypeForCaller(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.IsSystemDefault {
		return nil, utils.NewComplianceError("system disbursement type %q is read-only", t.Name)
	}
	return t, nil
}

func CreateDisbursementType(ctx context.Context, tx *gorm.DB, input NewDisbursementType) (*DisbursementType, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, err := ParseVATRule(string(input.VATRule)); err != nil {
		return nil, err
	}
	t := DisbursementType{
		AdvocateId: &advocateId,
		Name:       input.Name,
		Category:   input.Category,
		VATRule:    input.VATRule,
		VATRate:    input.VATRate,
	}
	if t.VATRule == VATRuleNever {
		t.VATRate = decimal.Zero
	}
	if err := tx.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func UpdateDisbursementType(ctx context.Context, tx *gorm.DB, id int, input NewDisbursementType) (*DisbursementType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, err := ParseVATRule(string(input.VATRule)); err != nil {
		return nil, err
	}
	t, err := getCustomTypeForChange(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	rate := input.VATRate
	if input.VATRule == VATRuleNever {
		rate = decimal.Zero
	}
	if err := tx.WithContext(ctx).Model(t).Updates(map[string]interface{}{
		"name":          input.Name,
		"category":      input.Category,
		"vat_treatment": input.VATRule,
		"vat_rate":      rate,
	}).Error; err != nil {
		return nil, err
	}
	t.Name, t.Category, t.VATRule, t.VATRate = input.Name, input.Category, input.VATRule, rate
	return t, nil
}

func DeleteDisbursementType(ctx context.Context, tx *gorm.DB, id int) (*DisbursementType, error) {
	t, err := getCustomTypeForChange(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var used int64
	if err := tx.WithContext(ctx).Model(&Disbursement{}).Where("disbursement_type_id = ?", id).Count(&used).Error; err != nil {
		return nil, err
	}
	if used > 0 {
		return nil, utils.NewComplianceError("disbursement type %q is used by %d disbursements", t.Name, used)
	}
	if err := tx.WithContext(ctx).Delete(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListDisbursementTypes returns the system defaults followed by the caller's custom types.
func ListDisbursementTypes(ctx context.Context, tx *gorm.DB) ([]*DisbursementType, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	var results []*DisbursementType
	err = tx.WithContext(ctx).
		Where("is_system_default = ? OR advocate_id = ?", true, advocateId).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "is_system_default"}, Desc: true}).
		Order("name").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindDisbursementTypeByCode looks up a system default by code.
func FindDisbursementTypeByCode(tx *gorm.DB, code string) (*DisbursementType, error) {
	var t DisbursementType
	err := tx.Where("code = ? AND is_system_default = ?", code, true).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError("disbursement type %q not found", code)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
