package models

import (
	"encoding/json"
	"strings"

	"github.com/NathiDhliso/Lexo-sub007/utils"
)

// normalizeEnum folds case, spaces and hyphens so "Written-Off", "written off" and
// "WRITTEN_OFF" all read the same.
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return s
}

func unmarshalEnum[T any](data []byte, parse func(string) (T, error), dst *T) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return utils.NewValidationError("enum value must be a string")
	}
	v, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "draft"
	InvoiceStatusSent       InvoiceStatus = "sent"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusOverdue    InvoiceStatus = "overdue"
	InvoiceStatusDisputed   InvoiceStatus = "disputed"
	InvoiceStatusWrittenOff InvoiceStatus = "written_off"
	InvoiceStatusProForma   InvoiceStatus = "pro_forma"
	InvoiceStatusConverted  InvoiceStatus = "converted"
)

var invoiceStatuses = map[string]InvoiceStatus{
	"draft":       InvoiceStatusDraft,
	"sent":        InvoiceStatusSent,
	"paid":        InvoiceStatusPaid,
	"overdue":     InvoiceStatusOverdue,
	"disputed":    InvoiceStatusDisputed,
	"written_off": InvoiceStatusWrittenOff,
	"writtenoff":  InvoiceStatusWrittenOff,
	"pro_forma":   InvoiceStatusProForma,
	"proforma":    InvoiceStatusProForma,
	"converted":   InvoiceStatusConverted,
}

// ParseInvoiceStatus is the only way external strings become an InvoiceStatus.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status, ok := invoiceStatuses[normalizeEnum(s)]
	if !ok {
		return "", utils.NewValidationError("invalid invoice status %q", s)
	}
	return status, nil
}

func (s *InvoiceStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseInvoiceStatus, s)
}

// VATRule is the treatment policy attached to a disbursement type.
type VATRule string

const (
	VATRuleAlways     VATRule = "always_vat"
	VATRuleNever      VATRule = "never_vat"
	VATRuleSuggest    VATRule = "suggest_vat"
	VATRuleSuggestNot VATRule = "suggest_no_vat"
)

func ParseVATRule(s string) (VATRule, error) {
	switch r := VATRule(normalizeEnum(s)); r {
	case VATRuleAlways, VATRuleNever, VATRuleSuggest, VATRuleSuggestNot:
		return r, nil
	}
	return "", utils.NewValidationError("invalid vat treatment rule %q", s)
}

func (r *VATRule) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseVATRule, r)
}

// VATTreatment is what was actually applied to a disbursement.
type VATTreatment string

const (
	VATTreatmentInclusive VATTreatment = "vat_inclusive"
	VATTreatmentExempt    VATTreatment = "vat_exempt"
)

func ParseVATTreatment(s string) (VATTreatment, error) {
	switch normalizeEnum(s) {
	case "vat_inclusive", "inclusive":
		return VATTreatmentInclusive, nil
	case "vat_exempt", "exempt":
		return VATTreatmentExempt, nil
	}
	return "", utils.NewValidationError("invalid vat treatment %q", s)
}

func (t *VATTreatment) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseVATTreatment, t)
}

type VATConfidence string

const (
	VATConfidenceHigh   VATConfidence = "high"
	VATConfidenceMedium VATConfidence = "medium"
	VATConfidenceLow    VATConfidence = "low"
)

type VATAuditAction string

const (
	VATAuditActionCreated    VATAuditAction = "created"
	VATAuditActionVATChanged VATAuditAction = "vat_changed"
	VATAuditActionCorrected  VATAuditAction = "corrected"
	VATAuditActionOverridden VATAuditAction = "overridden"
)

type LineItemType string

const (
	LineItemTypeTimeEntry     LineItemType = "time_entry"
	LineItemTypeLoggedService LineItemType = "logged_service"
	LineItemTypeDisbursement  LineItemType = "disbursement"
)

func ParseLineItemType(s string) (LineItemType, error) {
	switch normalizeEnum(s) {
	case "time_entry", "time_entries", "time":
		return LineItemTypeTimeEntry, nil
	case "logged_service", "logged_services", "service":
		return LineItemTypeLoggedService, nil
	case "disbursement", "disbursements", "expense":
		return LineItemTypeDisbursement, nil
	}
	return "", utils.NewValidationError("invalid line item type %q", s)
}

func (t *LineItemType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseLineItemType, t)
}

type ReminderTier string

const (
	ReminderTierInitial  ReminderTier = "initial"
	ReminderTierFollowUp ReminderTier = "follow_up"
	ReminderTierFinal    ReminderTier = "final"
)

// ReminderTierFor derives the tier of the next reminder from how many were already sent.
func ReminderTierFor(remindersSent int) ReminderTier {
	switch {
	case remindersSent <= 0:
		return ReminderTierInitial
	case remindersSent < 3:
		return ReminderTierFollowUp
	default:
		return ReminderTierFinal
	}
}
