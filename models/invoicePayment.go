package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Payment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Date      time.Time       `gorm:"not null" json:"date"`
	Method    string          `gorm:"size:50;not null" json:"method"`
	Reference string          `gorm:"size:255" json:"reference"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// SumPayments is the running total recorded against an invoice.
func SumPayments(tx *gorm.DB, invoiceId int) (decimal.Decimal, error) {
	var res amountTotal
	err := tx.Model(&Payment{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("invoice_id = ?", invoiceId).
		Scan(&res).Error
	return res.Total, err
}
