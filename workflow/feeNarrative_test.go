package workflow

import (
	"testing"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(description, hours, rate string) *models.TimeEntry {
	h, r := decimal.RequireFromString(hours), decimal.RequireFromString(rate)
	return &models.TimeEntry{
		LineItemBase: models.LineItemBase{Description: description, Amount: h.Mul(r)},
		Hours:        h,
		Rate:         r,
	}
}

func TestCategorizeDescription(t *testing.T) {
	cases := map[string]string{
		"Drafted heads of argument":           "Drafting & Review",
		"Perusal and review of record":        "Drafting & Review",
		"Consultation with attorney":          "Consultations",
		"Researched case law on prescription": "Legal Research",
		"Appearance in motion court":          "Court Appearances",
		"Telephone call with attorney":        "Correspondence",
		"Travelling to Pretoria":              "General Legal Services",
	}
	for description, want := range cases {
		assert.Equal(t, want, categorizeDescription(description), description)
	}
}

func TestFeeBreakdown(t *testing.T) {
	entries := []*models.TimeEntry{
		entry("Court appearance", "2", "1500"),
		entry("Drafting notice of motion", "1", "1000"),
		entry("Reviewing pleadings", "1", "2000"),
		entry("Site inspection", "0.5", "1000"),
	}
	services := []*models.LoggedService{
		{LineItemBase: models.LineItemBase{Description: "Settling affidavit", Amount: decimal.NewFromInt(800)}},
	}

	lines := FeeBreakdown(entries, services)
	require.Len(t, lines, 4)
	assert.Equal(t, "Drafting & Review", lines[0].Category)
	assert.True(t, lines[0].Hours.Equal(decimal.NewFromInt(2)))
	assert.True(t, lines[0].AverageRate.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 2, lines[0].Items)
	assert.Equal(t, "Court Appearances", lines[1].Category)
	assert.Equal(t, "General Legal Services", lines[2].Category)
	assert.Equal(t, "Fixed-Fee Services", lines[3].Category)
	assert.True(t, lines[3].Subtotal.Equal(decimal.NewFromInt(800)))
}

func TestBuildFeeNarrative(t *testing.T) {
	narrative := BuildFeeNarrative(
		[]*models.TimeEntry{entry("Consultation", "3.5", "2000")},
		[]*models.LoggedService{{LineItemBase: models.LineItemBase{Amount: decimal.NewFromInt(1500)}}},
	)
	assert.Equal(t, "Professional fees rendered:\n"+
		"- Consultations: 3.50 hours at an average of R2,000.00 per hour, R7,000.00\n"+
		"- Fixed-Fee Services: 1 service, R1,500.00", narrative)

	assert.Empty(t, BuildFeeNarrative(nil, nil))
}
