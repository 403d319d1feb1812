package models

import (
	"context"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Invoice struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	AdvocateId          string          `gorm:"size:64;index;not null" json:"advocate_id"`
	MatterId            int             `gorm:"index;not null" json:"matter_id"`
	Bar                 string          `gorm:"size:50;not null" json:"bar"`
	InvoiceNumber       string          `gorm:"size:50;not null;uniqueIndex" json:"invoice_number"`
	IssueDate           time.Time       `gorm:"not null" json:"issue_date"`
	DueDate             time.Time       `gorm:"not null" json:"due_date"`
	FeesAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fees_amount"`
	VATRate             decimal.Decimal `gorm:"column:vat_rate;type:decimal(6,4);default:0" json:"vat_rate"`
	VATAmount           decimal.Decimal `gorm:"column:vat_amount;type:decimal(20,4);default:0" json:"vat_amount"`
	DisbursementsAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"disbursements_amount"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AmountPaid          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Status              InvoiceStatus   `gorm:"size:20;not null;index" json:"status"`
	RemindersSent       int             `gorm:"not null;default:0" json:"reminders_sent"`
	NextReminderDate    *time.Time      `gorm:"index" json:"next_reminder_date"`
	LastReminderAt      *time.Time      `json:"last_reminder_at"`
	FeeNarrative        string          `gorm:"type:text" json:"fee_narrative"`
	IsProForma          bool            `gorm:"not null;default:false" json:"is_pro_forma"`
	ConvertedFromId     *int            `gorm:"index" json:"converted_from_id"`
	ConvertedToId       *int            `gorm:"index" json:"converted_to_id"`
	NeedsRegeneration   bool            `gorm:"not null;default:false" json:"needs_regeneration"`
	SentAt              *time.Time      `json:"sent_at"`
	DatePaid            *time.Time      `json:"date_paid"`
	Items               []InvoiceItem   `gorm:"foreignKey:InvoiceId" json:"items"`
	Payments            []Payment       `gorm:"foreignKey:InvoiceId" json:"payments"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (inv Invoice) OwnerId() string { return inv.AdvocateId }

func (inv Invoice) Outstanding() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

// InvoiceItem snapshots a line item an invoice was computed from. For a pro forma the
// rows are the attribution used when it is converted.
type InvoiceItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	ItemType    LineItemType    `gorm:"size:20;not null" json:"item_type"`
	ItemId      int             `gorm:"not null" json:"item_id"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (it InvoiceItem) Ref() LineItemRef {
	return LineItemRef{Type: it.ItemType, ID: it.ItemId}
}

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:    {InvoiceStatusSent},
	InvoiceStatusSent:     {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusDisputed, InvoiceStatusWrittenOff},
	InvoiceStatusOverdue:  {InvoiceStatusPaid},
	InvoiceStatusDisputed: {InvoiceStatusPaid},
	InvoiceStatusProForma: {InvoiceStatusConverted},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to InvoiceStatus) bool {
	for _, s := range invoiceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses with no outgoing transition.
func (s InvoiceStatus) IsTerminal() bool {
	return len(invoiceTransitions[s]) == 0
}

// AcceptsPayment reports statuses a payment may be recorded against.
func (s InvoiceStatus) AcceptsPayment() bool {
	return CanTransition(s, InvoiceStatusPaid)
}

// RemindersDue reports statuses the reminder sweep works on.
func (s InvoiceStatus) RemindersDue() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// LockInvoice re-reads an invoice FOR UPDATE inside tx.
func LockInvoice(tx *gorm.DB, id int) (*Invoice, error) {
	var inv Invoice
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, id).Error; err != nil {
		return nil, utils.NotFoundOr(err, "invoice", id)
	}
	return &inv, nil
}

func GetOwnedInvoice(ctx context.Context, tx *gorm.DB, id int) (*Invoice, error) {
	return utils.FetchOwnedModel[Invoice](ctx, tx, id, "invoice", "Items", "Payments")
}

type InvoiceFilter struct {
	MatterId         *int
	Status           *InvoiceStatus
	IncludeConverted bool
}

// ListInvoices returns the caller's invoices, newest first. Converted pro formas are hidden
// unless asked for.
func ListInvoices(ctx context.Context, tx *gorm.DB, filter InvoiceFilter) ([]*Invoice, error) {
	advocateId, err := utils.RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := tx.WithContext(ctx).Where("advocate_id = ?", advocateId)
	if filter.MatterId != nil {
		dbCtx = dbCtx.Where("matter_id = ?", *filter.MatterId)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	} else if !filter.IncludeConverted {
		dbCtx = dbCtx.Where("status <> ?", InvoiceStatusConverted)
	}
	var results []*Invoice
	if err := dbCtx.Order("issue_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// InvoicesWithReminderBefore lists invoices with a reminder on or before until. An empty
// advocateId spans all advocates.
func InvoicesWithReminderBefore(ctx context.Context, tx *gorm.DB, advocateId string, until time.Time) ([]*Invoice, error) {
	q := tx.WithContext(ctx).
		Where("status IN ?", []InvoiceStatus{InvoiceStatusSent, InvoiceStatusOverdue}).
		Where("next_reminder_date IS NOT NULL AND next_reminder_date <= ?", until)
	if advocateId != "" {
		q = q.Where("advocate_id = ?", advocateId)
	}
	var results []*Invoice
	err := q.Order("next_reminder_date, id").Find(&results).Error
	return results, err
}
