package models

import (
	"context"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VATAuditRecord is one entry of the append-only VAT trail. Rows are inserted and read;
// the gorm hooks below refuse every update and delete issued through the model.
type VATAuditRecord struct {
	ID                         int             `gorm:"primary_key" json:"id"`
	DisbursementId             int             `gorm:"index;not null" json:"disbursement_id"`
	AdvocateId                 string          `gorm:"size:64;index;not null" json:"advocate_id"`
	Category                   string          `gorm:"size:50" json:"category"`
	Action                     VATAuditAction  `gorm:"size:20;not null;index" json:"action"`
	OldTreatment               *VATTreatment   `gorm:"size:20;default:null" json:"old_treatment"`
	NewTreatment               VATTreatment    `gorm:"size:20;not null" json:"new_treatment"`
	SuggestedTreatment         VATTreatment    `gorm:"size:20" json:"suggested_treatment"`
	OldVATAmount               decimal.Decimal `gorm:"column:old_vat_amount;type:decimal(20,4);default:0" json:"old_vat_amount"`
	NewVATAmount               decimal.Decimal `gorm:"column:new_vat_amount;type:decimal(20,4);default:0" json:"new_vat_amount"`
	Amount                     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Reason                     string          `gorm:"type:text" json:"reason"`
	Actor                      string          `gorm:"size:255;not null" json:"actor"`
	InvoiceId                  *int            `gorm:"index;default:null" json:"invoice_id"`
	InvoiceRegenerationFlagged bool            `gorm:"not null;default:false" json:"invoice_regeneration_flagged"`
	CreatedAt                  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (VATAuditRecord) BeforeUpdate(tx *gorm.DB) error {
	return utils.NewComplianceError("vat audit records cannot be modified")
}

func (VATAuditRecord) BeforeDelete(tx *gorm.DB) error {
	return utils.NewComplianceError("vat audit records cannot be deleted")
}

// AppendVATAudit inserts one audit row. It is the only writer of the table.
func AppendVATAudit(tx *gorm.DB, rec *VATAuditRecord) error {
	rec.ID = 0
	return tx.Create(rec).Error
}

func ListVATAuditForDisbursement(ctx context.Context, tx *gorm.DB, advocateId string, disbursementId int) ([]*VATAuditRecord, error) {
	var results []*VATAuditRecord
	err := tx.WithContext(ctx).
		Where("advocate_id = ? AND disbursement_id = ?", advocateId, disbursementId).
		Order("created_at, id").
		Find(&results).Error
	return results, err
}

// ListVATAudit returns the caller's audit rows created in [from, to).
func ListVATAudit(ctx context.Context, tx *gorm.DB, advocateId string, from, to time.Time) ([]*VATAuditRecord, error) {
	var results []*VATAuditRecord
	err := tx.WithContext(ctx).
		Where("advocate_id = ? AND created_at >= ? AND created_at < ?", advocateId, from, to).
		Order("created_at, id").
		Find(&results).Error
	return results, err
}
