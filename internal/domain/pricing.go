package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CoverageTier names the level of the flat type coverage.
type CoverageTier string

const (
	// CoverageTierBasic is the entry level coverage tier.
	CoverageTierBasic CoverageTier = "Basic"
	// CoverageTierPremium is the extended coverage tier.
	CoverageTierPremium CoverageTier = "Premium"
)

// CoverageTiers lists every supported tier in declaration order.
func CoverageTiers() []CoverageTier {
	return []CoverageTier{CoverageTierBasic, CoverageTierPremium}
}

// Valid reports whether the tier is one of the enumerated values.
func (t CoverageTier) Valid() bool {
	switch t {
	case CoverageTierBasic, CoverageTierPremium:
		return true
	default:
		return false
	}
}

// PercentageCoverage enumerates coverages priced as a markup on the flat subtotal.
type PercentageCoverage string

const (
	// PercentageCoverageFlood marks up the subtotal by the jurisdiction flood percentage.
	PercentageCoverageFlood PercentageCoverage = "flood"
)

// PercentageCoverages returns the percentage coverages in the order they are applied.
func PercentageCoverages() []PercentageCoverage {
	return []PercentageCoverage{PercentageCoverageFlood}
}

// FlatCoverageSelection captures the flat cost coverages chosen for a quote.
type FlatCoverageSelection struct {
	Tier        CoverageTier
	PetCoverage bool
}

// PercentageCoverageSelection captures the percentage cost coverages chosen for a quote.
type PercentageCoverageSelection struct {
	FloodCoverage bool
}

// Selected reports whether the given percentage coverage was requested.
func (s PercentageCoverageSelection) Selected(coverage PercentageCoverage) bool {
	switch coverage {
	case PercentageCoverageFlood:
		return s.FloodCoverage
	default:
		return false
	}
}

// CoverageCostTable holds the prices and rates for a single jurisdiction.
type CoverageCostTable struct {
	FlatTypeCost           map[CoverageTier]decimal.Decimal
	PetCoverageCost        decimal.Decimal
	PercentageCoverageRate map[PercentageCoverage]decimal.Decimal
	TaxRate                decimal.Decimal
}

// CoverageCostTables maps jurisdiction codes to their cost tables. Callers treat it as read-only.
type CoverageCostTables map[string]CoverageCostTable

// Codes returns the supported jurisdiction codes sorted alphabetically.
func (t CoverageCostTables) Codes() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// QuoteCost is the rounded monthly cost of a quote.
type QuoteCost struct {
	Subtotal decimal.Decimal
	Taxes    decimal.Decimal
	Total    decimal.Decimal
}

// JurisdictionRates pairs a jurisdiction code with its cost table.
type JurisdictionRates struct {
	Code  string
	Table CoverageCostTable
}
