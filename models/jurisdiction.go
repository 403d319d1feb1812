package models

import (
	"sort"
	"strings"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// JurisdictionRules is the billing policy of one bar. Values are copied in and out of the
// registry, so a JurisdictionRules held by a caller never aliases registry state.
type JurisdictionRules struct {
	Bar                  string          `json:"bar"`
	DisplayName          string          `json:"display_name"`
	InvoicePrefix        string          `json:"invoice_prefix"`
	PaymentTermDays      int             `json:"payment_term_days"`
	ReminderScheduleDays []int           `json:"reminder_schedule_days"`
	VATRate              decimal.Decimal `json:"vat_rate"`
	TrustTransferDays    int             `json:"trust_transfer_days"`
	LateFeePercentage    decimal.Decimal `json:"late_fee_percentage"`
	PrescriptionYears    int             `json:"prescription_years"`
}

func (r JurisdictionRules) clone() JurisdictionRules {
	r.ReminderScheduleDays = append([]int(nil), r.ReminderScheduleDays...)
	return r
}

func (r JurisdictionRules) validate() error {
	if strings.TrimSpace(r.Bar) == "" {
		return utils.NewValidationError("jurisdiction key is required")
	}
	if strings.TrimSpace(r.InvoicePrefix) == "" {
		return utils.NewValidationError("jurisdiction %s: invoice prefix is required", r.Bar)
	}
	if r.PaymentTermDays <= 0 {
		return utils.NewValidationError("jurisdiction %s: payment term days must be positive", r.Bar)
	}
	prev := 0
	for _, d := range r.ReminderScheduleDays {
		if d <= prev {
			return utils.NewValidationError("jurisdiction %s: reminder offsets must be positive and strictly increasing", r.Bar)
		}
		prev = d
	}
	if r.VATRate.IsNegative() || r.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return utils.NewValidationError("jurisdiction %s: vat rate must be a fraction in [0, 1)", r.Bar)
	}
	if r.LateFeePercentage.IsNegative() || r.TrustTransferDays < 0 || r.PrescriptionYears < 0 {
		return utils.NewValidationError("jurisdiction %s: negative policy value", r.Bar)
	}
	return nil
}

// DueDate is the issue date plus the bar's payment term.
func (r JurisdictionRules) DueDate(issueDate time.Time) time.Time {
	return utils.AddDays(issueDate, r.PaymentTermDays)
}

// ReminderDate returns issue date + schedule[index], or nil when the schedule is exhausted.
func (r JurisdictionRules) ReminderDate(issueDate time.Time, index int) *time.Time {
	if index < 0 || index >= len(r.ReminderScheduleDays) {
		return nil
	}
	d := utils.AddDays(issueDate, r.ReminderScheduleDays[index])
	return &d
}

// JurisdictionRegistry is an immutable lookup of rules by bar. Build it once at startup
// and pass it to the services that need it.
type JurisdictionRegistry struct {
	rules map[string]JurisdictionRules
}

func jurisdictionKey(bar string) string {
	return normalizeEnum(bar)
}

func NewJurisdictionRegistry(rules []JurisdictionRules) (*JurisdictionRegistry, error) {
	reg := &JurisdictionRegistry{rules: make(map[string]JurisdictionRules, len(rules))}
	for _, r := range rules {
		r.Bar = jurisdictionKey(r.Bar)
		r.InvoicePrefix = strings.ToUpper(strings.TrimSpace(r.InvoicePrefix))
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.rules[r.Bar]; dup {
			return nil, utils.NewValidationError("jurisdiction %s defined twice", r.Bar)
		}
		reg.rules[r.Bar] = r.clone()
	}
	return reg, nil
}

// Lookup never falls back to a default bar.
func (reg *JurisdictionRegistry) Lookup(bar string) (JurisdictionRules, error) {
	if reg == nil {
		return JurisdictionRules{}, utils.NewUnknownJurisdictionError(bar)
	}
	r, ok := reg.rules[jurisdictionKey(bar)]
	if !ok {
		return JurisdictionRules{}, utils.NewUnknownJurisdictionError(bar)
	}
	return r.clone(), nil
}

func (reg *JurisdictionRegistry) Bars() []string {
	out := make([]string, 0, len(reg.rules))
	for k := range reg.rules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func DefaultJurisdictionRules() []JurisdictionRules {
	vat := decimal.RequireFromString("0.15")
	return []JurisdictionRules{
		{
			Bar: "johannesburg", DisplayName: "Johannesburg Society of Advocates", InvoicePrefix: "JHB",
			PaymentTermDays: 60, ReminderScheduleDays: []int{30, 45, 55}, VATRate: vat,
			TrustTransferDays: 7, LateFeePercentage: decimal.RequireFromString("2"), PrescriptionYears: 3,
		},
		{
			Bar: "pretoria", DisplayName: "Pretoria Society of Advocates", InvoicePrefix: "PTA",
			PaymentTermDays: 30, ReminderScheduleDays: []int{14, 21, 28}, VATRate: vat,
			TrustTransferDays: 7, LateFeePercentage: decimal.RequireFromString("2"), PrescriptionYears: 3,
		},
		{
			Bar: "cape_town", DisplayName: "Cape Bar", InvoicePrefix: "CPT",
			PaymentTermDays: 90, ReminderScheduleDays: []int{30, 60, 85}, VATRate: vat,
			TrustTransferDays: 14, LateFeePercentage: decimal.RequireFromString("1.5"), PrescriptionYears: 3,
		},
		{
			Bar: "durban", DisplayName: "KwaZulu-Natal Society of Advocates", InvoicePrefix: "DBN",
			PaymentTermDays: 60, ReminderScheduleDays: []int{30, 45, 55}, VATRate: vat,
			TrustTransferDays: 7, LateFeePercentage: decimal.RequireFromString("2"), PrescriptionYears: 3,
		},
	}
}

type jurisdictionFileEntry struct {
	Bar                  string `mapstructure:"bar"`
	DisplayName          string `mapstructure:"display_name"`
	InvoicePrefix        string `mapstructure:"invoice_prefix"`
	PaymentTermDays      int    `mapstructure:"payment_term_days"`
	ReminderScheduleDays []int  `mapstructure:"reminder_schedule_days"`
	VATRate              string `mapstructure:"vat_rate"`
	TrustTransferDays    int    `mapstructure:"trust_transfer_days"`
	LateFeePercentage    string `mapstructure:"late_fee_percentage"`
	PrescriptionYears    int    `mapstructure:"prescription_years"`
}

// LoadJurisdictionRegistry builds the registry from a YAML/JSON/TOML file with a top-level
// "jurisdictions" list. An empty path gives the built-in table.
func LoadJurisdictionRegistry(path string) (*JurisdictionRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return NewJurisdictionRegistry(DefaultJurisdictionRules())
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var entries []jurisdictionFileEntry
	if err := v.UnmarshalKey("jurisdictions", &entries); err != nil {
		return nil, err
	}
	rules := make([]JurisdictionRules, 0, len(entries))
	for _, e := range entries {
		vatRate, err := utils.ParseDecimal(e.VATRate)
		if err != nil {
			return nil, err
		}
		lateFee := decimal.Zero
		if strings.TrimSpace(e.LateFeePercentage) != "" {
			if lateFee, err = utils.ParseDecimal(e.LateFeePercentage); err != nil {
				return nil, err
			}
		}
		rules = append(rules, JurisdictionRules{
			Bar:                  e.Bar,
			DisplayName:          e.DisplayName,
			InvoicePrefix:        e.InvoicePrefix,
			PaymentTermDays:      e.PaymentTermDays,
			ReminderScheduleDays: e.ReminderScheduleDays,
			VATRate:              vatRate,
			TrustTransferDays:    e.TrustTransferDays,
			LateFeePercentage:    lateFee,
			PrescriptionYears:    e.PrescriptionYears,
		})
	}
	return NewJurisdictionRegistry(rules)
}
