package models

import (
	"context"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineItemBase holds the columns shared by every billable line item. InvoiceId is
// written once, by the freeze, and the row is immutable from then on.
type LineItemBase struct {
	MatterId    int             `gorm:"index;not null" json:"matter_id"`
	AdvocateId  string          `gorm:"size:64;index;not null" json:"advocate_id"`
	Date        time.Time       `gorm:"not null" json:"date"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Billed      bool            `gorm:"not null;default:false;index" json:"billed"`
	InvoiceId   *int            `gorm:"index;default:null" json:"invoice_id"`
}

func (b LineItemBase) OwnerId() string { return b.AdvocateId }

func (b LineItemBase) IsFrozen() bool { return b.Billed || b.InvoiceId != nil }

type TimeEntry struct {
	ID int `gorm:"primary_key" json:"id"`
	LineItemBase
	Hours     decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"hours"`
	Rate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type LoggedService struct {
	ID int `gorm:"primary_key" json:"id"`
	LineItemBase
	Quantity  decimal.Decimal `gorm:"type:decimal(10,2);default:1" json:"quantity"`
	UnitRate  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Disbursement amounts are gross, as stated on the supplier document.
type Disbursement struct {
	ID int `gorm:"primary_key" json:"id"`
	LineItemBase
	DisbursementTypeId int             `gorm:"index;not null" json:"disbursement_type_id"`
	VATTreatment       VATTreatment    `gorm:"column:vat_treatment;size:20;not null" json:"vat_treatment"`
	VATAmount          decimal.Decimal `gorm:"column:vat_amount;type:decimal(20,4);default:0" json:"vat_amount"`
	VATOverridden      bool            `gorm:"column:vat_overridden;not null;default:false" json:"vat_overridden"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LineItemRef addresses one line item across the three tables.
type LineItemRef struct {
	Type LineItemType `json:"type" validate:"required"`
	ID   int          `json:"id" validate:"required,gt=0"`
}

// modelFor returns a pointer to an empty row of the table backing t.
func modelFor(t LineItemType) (any, error) {
	switch t {
	case LineItemTypeTimeEntry:
		return &TimeEntry{}, nil
	case LineItemTypeLoggedService:
		return &LoggedService{}, nil
	case LineItemTypeDisbursement:
		return &Disbursement{}, nil
	}
	return nil, utils.NewValidationError("invalid line item type %q", t)
}

var lineItemTypes = []LineItemType{LineItemTypeTimeEntry, LineItemTypeLoggedService, LineItemTypeDisbursement}

// LineItemTypes lists the line item tables in the order they are always visited.
func LineItemTypes() []LineItemType {
	return append([]LineItemType(nil), lineItemTypes...)
}

// GroupRefs splits refs by table, de-duplicating ids.
func GroupRefs(refs []LineItemRef) (map[LineItemType][]int, error) {
	out := make(map[LineItemType][]int, len(lineItemTypes))
	for _, r := range refs {
		if _, err := modelFor(r.Type); err != nil {
			return nil, err
		}
		if r.ID <= 0 {
			return nil, utils.NewValidationError("line item id must be positive")
		}
		out[r.Type] = append(out[r.Type], r.ID)
	}
	for k, ids := range out {
		out[k] = utils.UniqueSlice(ids)
	}
	return out, nil
}

type amountTotal struct {
	Total decimal.Decimal
}

// SumUnbilled totals the unbilled amount of one line item table for a matter.
func SumUnbilled(tx *gorm.DB, t LineItemType, matterId int) (decimal.Decimal, error) {
	model, err := modelFor(t)
	if err != nil {
		return decimal.Zero, err
	}
	var res amountTotal
	if err := tx.Model(model).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("matter_id = ? AND billed = ? AND invoice_id IS NULL", matterId, false).
		Scan(&res).Error; err != nil {
		return decimal.Zero, err
	}
	return res.Total, nil
}

// FreezeByIds claims unbilled rows of one table for invoiceId and reports how many were
// claimed. Rows already billed, attached, of another matter or missing are not touched.
func FreezeByIds(tx *gorm.DB, t LineItemType, ids []int, matterId int, invoiceId int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	model, err := modelFor(t)
	if err != nil {
		return 0, err
	}
	res := tx.Model(model).
		Where("id IN ? AND matter_id = ? AND billed = ? AND invoice_id IS NULL", ids, matterId, false).
		Updates(map[string]interface{}{
			"billed":     true,
			"invoice_id": invoiceId,
		})
	return res.RowsAffected, res.Error
}

// CountOnOtherMatters counts the rows among ids of one table that exist but belong to a
// matter other than matterId.
func CountOnOtherMatters(tx *gorm.DB, t LineItemType, ids []int, matterId int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	model, err := modelFor(t)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.Model(model).Where("id IN ? AND matter_id <> ?", ids, matterId).Count(&n).Error
	return n, err
}

// UpdateUnbilled applies changes to a line item only while it is unbilled.
// It returns false when the row was frozen (or vanished) in the meantime.
func UpdateUnbilled(tx *gorm.DB, t LineItemType, id int, changes map[string]interface{}) (bool, error) {
	model, err := modelFor(t)
	if err != nil {
		return false, err
	}
	res := tx.Model(model).
		Where("id = ? AND billed = ? AND invoice_id IS NULL", id, false).
		Updates(changes)
	return res.RowsAffected == 1, res.Error
}

// DeleteUnbilled removes a line item only while it is unbilled.
func DeleteUnbilled(tx *gorm.DB, t LineItemType, id int) (bool, error) {
	model, err := modelFor(t)
	if err != nil {
		return false, err
	}
	res := tx.Where("id = ? AND billed = ? AND invoice_id IS NULL", id, false).Delete(model)
	return res.RowsAffected == 1, res.Error
}

func FetchOwnedTimeEntry(ctx context.Context, tx *gorm.DB, id int) (*TimeEntry, error) {
	return utils.FetchOwnedModel[TimeEntry](ctx, tx, id, "time entry")
}

func FetchOwnedLoggedService(ctx context.Context, tx *gorm.DB, id int) (*LoggedService, error) {
	return utils.FetchOwnedModel[LoggedService](ctx, tx, id, "logged service")
}

func FetchOwnedDisbursement(ctx context.Context, tx *gorm.DB, id int) (*Disbursement, error) {
	return utils.FetchOwnedModel[Disbursement](ctx, tx, id, "disbursement")
}

// ListUnbilledOf returns the unbilled rows of T for a matter, oldest first.
func ListUnbilledOf[T any](tx *gorm.DB, matterId int) ([]*T, error) {
	var results []*T
	err := tx.Where("matter_id = ? AND billed = ? AND invoice_id IS NULL", matterId, false).
		Order("date, id").
		Find(&results).Error
	return results, err
}

// FindByIdsOf returns the rows of T on a matter among ids, billed or not.
func FindByIdsOf[T any](tx *gorm.DB, matterId int, ids []int) ([]*T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var results []*T
	err := tx.Where("matter_id = ? AND id IN ?", matterId, ids).
		Order("date, id").
		Find(&results).Error
	return results, err
}
