package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// VAT convention
//
// Disbursement amounts are gross figures copied from the supplier's tax invoice. A
// vat_inclusive disbursement already contains VAT, so the VAT portion is extracted
// (amount * rate / (1 + rate)). Nothing is ever added on top of a disbursement.
//
// Professional fees are net. Invoice VAT on fees is added on top (fees * rate).
//
// Rates are fractions (0.15), not percentages.

var (
	decimalZero = decimal.Zero
	decimalOne  = decimal.NewFromInt(1)
)

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ExtractInclusiveVAT returns the VAT contained in a VAT-inclusive gross amount.
func ExtractInclusiveVAT(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.LessThanOrEqual(decimalZero) || gross.IsZero() {
		return decimalZero
	}
	return RoundMoney(gross.Mul(rate).Div(decimalOne.Add(rate)))
}

// AddExclusiveVAT returns the VAT charged on top of a net amount.
func AddExclusiveVAT(net, rate decimal.Decimal) decimal.Decimal {
	if rate.LessThanOrEqual(decimalZero) || net.IsZero() {
		return decimalZero
	}
	return RoundMoney(net.Mul(rate))
}

// FormatRand renders an amount as "R12,345.67".
func FormatRand(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := RoundMoney(d.Abs()).StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("R%s.%s", b.String(), frac)
	if neg {
		return "-" + out
	}
	return out
}
