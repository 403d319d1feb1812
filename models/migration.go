package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or updates the billing schema and seeds the system disbursement
// types. Safe to run on every boot.
func MigrateTable(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Matter{},
		&TimeEntry{}, &LoggedService{}, &Disbursement{}, &DisbursementType{},
		&VATAuditRecord{},
		&Invoice{}, &InvoiceItem{}, &Payment{}, &InvoiceNumberSeries{},
		&ReminderDispatch{},
	)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return SeedSystemDisbursementTypes(tx)
	})
}
