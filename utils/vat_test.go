package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExtractInclusiveVAT(t *testing.T) {
	rate := dec("0.15")
	assert.True(t, ExtractInclusiveVAT(dec("1150"), rate).Equal(dec("150")))
	assert.True(t, ExtractInclusiveVAT(dec("100"), rate).Equal(dec("13.04")))
	assert.True(t, ExtractInclusiveVAT(dec("100"), decimal.Zero).IsZero())
	assert.True(t, ExtractInclusiveVAT(decimal.Zero, rate).IsZero())
}

func TestAddExclusiveVAT(t *testing.T) {
	rate := dec("0.15")
	assert.True(t, AddExclusiveVAT(dec("10000"), rate).Equal(dec("1500")))
	assert.True(t, AddExclusiveVAT(dec("33.33"), rate).Equal(dec("5")))
	assert.True(t, AddExclusiveVAT(dec("10000"), decimal.Zero).IsZero())
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, "2.68", RoundMoney(dec("2.675")).String())
	assert.Equal(t, "-2.68", RoundMoney(dec("-2.675")).String())
}

func TestFormatRand(t *testing.T) {
	cases := map[string]string{
		"0":          "R0.00",
		"5":          "R5.00",
		"999.995":    "R1,000.00",
		"12345.6":    "R12,345.60",
		"1234567.89": "R1,234,567.89",
		"-2500":      "-R2,500.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatRand(dec(in)), in)
	}
}
