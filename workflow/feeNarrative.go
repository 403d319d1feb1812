package workflow

import (
	"fmt"
	"strings"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
)

const (
	generalServicesCategory = "General Legal Services"
	fixedFeeCategory        = "Fixed-Fee Services"
)

// Order matters: the first category whose keyword appears in the description wins.
var narrativeCategories = []struct {
	Name     string
	Keywords []string
}{
	{"Drafting & Review", []string{"draft", "review", "revis", "amend", "prepar", "pleading", "heads of argument", "opinion"}},
	{"Consultations", []string{"consult", "meeting", "conference", "instructions"}},
	{"Legal Research", []string{"research", "case law", "precedent", "authorities", "statute"}},
	{"Court Appearances", []string{"court", "hearing", "trial", "appearance", "motion", "argument", "attendance"}},
	{"Correspondence", []string{"email", "e-mail", "letter", "correspondence", "telephone", "call"}},
}

func categorizeDescription(description string) string {
	d := strings.ToLower(description)
	for _, c := range narrativeCategories {
		for _, k := range c.Keywords {
			if strings.Contains(d, k) {
				return c.Name
			}
		}
	}
	return generalServicesCategory
}

type NarrativeLine struct {
	Category    string          `json:"category"`
	Hours       decimal.Decimal `json:"hours"`
	AverageRate decimal.Decimal `json:"average_rate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Items       int             `json:"items"`
}

// FeeBreakdown groups time entries by category in the fixed category order, with logged
// services summarised last.
func FeeBreakdown(entries []*models.TimeEntry, services []*models.LoggedService) []NarrativeLine {
	byCategory := map[string]*NarrativeLine{}
	for _, e := range entries {
		name := categorizeDescription(e.Description)
		line, ok := byCategory[name]
		if !ok {
			line = &NarrativeLine{Category: name}
			byCategory[name] = line
		}
		line.Hours = line.Hours.Add(e.Hours)
		line.Subtotal = line.Subtotal.Add(e.Amount)
		line.Items++
	}

	order := make([]string, 0, len(narrativeCategories)+1)
	for _, c := range narrativeCategories {
		order = append(order, c.Name)
	}
	order = append(order, generalServicesCategory)

	var lines []NarrativeLine
	for _, name := range order {
		line, ok := byCategory[name]
		if !ok {
			continue
		}
		if line.Hours.IsPositive() {
			line.AverageRate = utils.RoundMoney(line.Subtotal.Div(line.Hours))
		}
		line.Subtotal = utils.RoundMoney(line.Subtotal)
		lines = append(lines, *line)
	}

	if len(services) > 0 {
		svc := NarrativeLine{Category: fixedFeeCategory}
		for _, s := range services {
			svc.Subtotal = svc.Subtotal.Add(s.Amount)
			svc.Items++
		}
		svc.Subtotal = utils.RoundMoney(svc.Subtotal)
		lines = append(lines, svc)
	}
	return lines
}

// BuildFeeNarrative renders the fee breakdown as the text printed on the invoice.
func BuildFeeNarrative(entries []*models.TimeEntry, services []*models.LoggedService) string {
	lines := FeeBreakdown(entries, services)
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Professional fees rendered:")
	for _, l := range lines {
		b.WriteString("\n- ")
		if l.Category == fixedFeeCategory {
			noun := "services"
			if l.Items == 1 {
				noun = "service"
			}
			fmt.Fprintf(&b, "%s: %d %s, %s", l.Category, l.Items, noun, utils.FormatRand(l.Subtotal))
			continue
		}
		fmt.Fprintf(&b, "%s: %s hours at an average of %s per hour, %s",
			l.Category, l.Hours.StringFixed(2), utils.FormatRand(l.AverageRate), utils.FormatRand(l.Subtotal))
	}
	return b.String()
}
