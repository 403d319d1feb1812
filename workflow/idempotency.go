package workflow

import (
	"errors"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrDispatchInProgress = errors.New("reminder dispatch in progress")

// staleDispatchAfter is how long a STARTED row may sit before another sweep takes it over.
const staleDispatchAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginReminderDispatch inserts STARTED for (invoiceId, reminderNo). If SUCCEEDED exists,
// returns (true, nil) meaning the reminder already went out and must not be sent again.
func BeginReminderDispatch(tx *gorm.DB, invoiceId, reminderNo int, tier models.ReminderTier) (skip bool, err error) {
	row := models.ReminderDispatch{
		InvoiceId:  invoiceId,
		ReminderNo: reminderNo,
		Tier:       tier,
		Status:     models.ReminderDispatchStarted,
		Attempts:   1,
	}
	if err := tx.Create(&row).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.ReminderDispatch
	if err := tx.Where("invoice_id = ? AND reminder_no = ?", invoiceId, reminderNo).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.ReminderDispatchSucceeded:
		return true, nil
	case models.ReminderDispatchStarted:
		if time.Since(existing.UpdatedAt) < staleDispatchAfter {
			return false, ErrDispatchInProgress
		}
	}
	return false, tx.Model(&models.ReminderDispatch{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"status":     models.ReminderDispatchStarted,
			"tier":       tier,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": nil,
		}).Error
}

func MarkReminderDispatchSucceeded(tx *gorm.DB, invoiceId, reminderNo int, notificationId string) error {
	return tx.Model(&models.ReminderDispatch{}).
		Where("invoice_id = ? AND reminder_no = ?", invoiceId, reminderNo).
		Updates(map[string]interface{}{
			"status":          models.ReminderDispatchSucceeded,
			"notification_id": &notificationId,
			"last_error":      nil,
		}).Error
}

func MarkReminderDispatchFailed(tx *gorm.DB, invoiceId, reminderNo int, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.ReminderDispatch{}).
		Where("invoice_id = ? AND reminder_no = ?", invoiceId, reminderNo).
		Updates(map[string]interface{}{
			"status":     models.ReminderDispatchFailed,
			"last_error": &msg,
		}).Error
}
