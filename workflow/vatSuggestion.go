package workflow

import (
	"fmt"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
)

type VATSuggestion struct {
	SuggestedTreatment models.VATTreatment  `json:"suggested_treatment"`
	VATAmount          decimal.Decimal      `json:"vat_amount"`
	Explanation        string               `json:"explanation"`
	CanOverride        bool                 `json:"can_override"`
	Confidence         models.VATConfidence `json:"confidence"`
}

// SuggestVATForRule applies a disbursement type's rule to a gross amount.
func SuggestVATForRule(rule models.VATRule, rate, amount decimal.Decimal) VATSuggestion {
	inclusive := func() decimal.Decimal { return utils.ExtractInclusiveVAT(amount, rate) }
	pct := rate.Shift(2).String()

	switch rule {
	case models.VATRuleAlways:
		return VATSuggestion{
			SuggestedTreatment: models.VATTreatmentInclusive,
			VATAmount:          inclusive(),
			Explanation:        fmt.Sprintf("This disbursement type always carries VAT at %s%%, included in the amount.", pct),
			CanOverride:        false,
			Confidence:         models.VATConfidenceHigh,
		}
	case models.VATRuleNever:
		return VATSuggestion{
			SuggestedTreatment: models.VATTreatmentExempt,
			VATAmount:          decimal.Zero,
			Explanation:        "This disbursement type is exempt from VAT.",
			CanOverride:        false,
			Confidence:         models.VATConfidenceHigh,
		}
	case models.VATRuleSuggest:
		return VATSuggestion{
			SuggestedTreatment: models.VATTreatmentInclusive,
			VATAmount:          inclusive(),
			Explanation:        fmt.Sprintf("This disbursement type usually includes VAT at %s%%. Check the supplier's tax invoice.", pct),
			CanOverride:        true,
			Confidence:         models.VATConfidenceMedium,
		}
	case models.VATRuleSuggestNot:
		return VATSuggestion{
			SuggestedTreatment: models.VATTreatmentExempt,
			VATAmount:          decimal.Zero,
			Explanation:        "This disbursement type is usually not subject to VAT. Check the supplier's tax invoice.",
			CanOverride:        true,
			Confidence:         models.VATConfidenceMedium,
		}
	}
	return VATSuggestion{
		SuggestedTreatment: models.VATTreatmentExempt,
		VATAmount:          decimal.Zero,
		Explanation:        "No VAT rule is defined for this disbursement type. Treated as exempt until reviewed.",
		CanOverride:        true,
		Confidence:         models.VATConfidenceLow,
	}
}

// applyTreatment computes the VAT held in amount under treatment.
func applyTreatment(treatment models.VATTreatment, rate, amount decimal.Decimal) decimal.Decimal {
	if treatment == models.VATTreatmentInclusive {
		return utils.ExtractInclusiveVAT(amount, rate)
	}
	return decimal.Zero
}
