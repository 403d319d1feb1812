package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceNumberSeries is the per prefix+month counter behind invoice numbers. The row is
// locked FOR UPDATE for the lifetime of the allocating transaction, so concurrent
// allocations for the same prefix and month are serialized.
type InvoiceNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Prefix     string    `gorm:"size:20;not null;uniqueIndex:uniq_invoice_series" json:"prefix"`
	Period     string    `gorm:"size:6;not null;uniqueIndex:uniq_invoice_series" json:"period"`
	LastNumber int       `gorm:"not null;default:0" json:"last_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProFormaPrefix keeps quotes out of the final invoice numbering.
func ProFormaPrefix(prefix string) string {
	return prefix + "PF"
}

func FormatInvoiceNumber(prefix, period string, n int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, period, n)
}

// ParseInvoiceNumber splits PREFIX-YYYYMM-NNNN.
func ParseInvoiceNumber(number string) (prefix, period string, n int, ok bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || len(parts[1]) != 6 {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n <= 0 {
		return "", "", 0, false
	}
	return parts[0], parts[1], n, true
}

// highestIssuedNumber scans existing invoices, so a series row that was lost or never
// created cannot hand out a number that is already taken.
func highestIssuedNumber(tx *gorm.DB, prefix, period string) (int, error) {
	var numbers []string
	if err := tx.Model(&Invoice{}).
		Where("invoice_number LIKE ?", prefix+"-"+period+"-%").
		Pluck("invoice_number", &numbers).Error; err != nil {
		return 0, err
	}
	highest := 0
	for _, num := range numbers {
		p, per, n, ok := ParseInvoiceNumber(num)
		if ok && p == prefix && per == period && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// NextInvoiceNumber allocates the next number for prefix in the month of issueDate.
// Must run inside the transaction that inserts the invoice.
func NextInvoiceNumber(tx *gorm.DB, prefix string, issueDate time.Time) (string, error) {
	period := issueDate.UTC().Format("200601")

	var series InvoiceNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND period = ?", prefix, period).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		highest, herr := highestIssuedNumber(tx, prefix, period)
		if herr != nil {
			return "", herr
		}
		seed := InvoiceNumberSeries{Prefix: prefix, Period: period, LastNumber: highest}
		if cerr := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; cerr != nil {
			return "", cerr
		}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("prefix = ? AND period = ?", prefix, period).
			First(&series).Error
	}
	if err != nil {
		return "", err
	}

	next := series.LastNumber + 1
	if err := tx.Model(&InvoiceNumberSeries{}).
		Where("id = ?", series.ID).
		Update("last_number", next).Error; err != nil {
		return "", err
	}
	return FormatInvoiceNumber(prefix, period, next), nil
}
