package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/homequote/api/internal/domain"
)

const moneyPlaces = 2

var (
	// ErrUnsupportedJurisdiction is returned when no cost table exists for the requested state.
	ErrUnsupportedJurisdiction = errors.New("quote pricing: unsupported jurisdiction")
	// ErrQuotePricingInvalidInput signals a selection the boundary should have rejected, such as an unknown tier.
	ErrQuotePricingInvalidInput = errors.New("quote pricing: invalid input")
)

var hundred = decimal.NewFromInt(100)

// QuotePricingEngine prices coverage selections against an immutable set of jurisdiction cost tables.
// It holds no mutable state and is safe for concurrent use.
type QuotePricingEngine struct {
	tables domain.CoverageCostTables
}

// NewQuotePricingEngine copies and validates the tables. Every table must price every tier and
// every percentage coverage.
func NewQuotePricingEngine(tables domain.CoverageCostTables) (*QuotePricingEngine, error) {
	if len(tables) == 0 {
		return nil, errors.New("quote pricing engine: at least one jurisdiction table is required")
	}
	owned := make(domain.CoverageCostTables, len(tables))
	for code, table := range tables {
		normalized := normalizeJurisdiction(code)
		if normalized == "" {
			return nil, errors.New("quote pricing engine: jurisdiction code is required")
		}
		if _, dup := owned[normalized]; dup {
			return nil, fmt.Errorf("quote pricing engine: jurisdiction %s defined twice", normalized)
		}
		for _, tier := range domain.CoverageTiers() {
			if _, ok := table.FlatTypeCost[tier]; !ok {
				return nil, fmt.Errorf("quote pricing engine: jurisdiction %s missing %s tier cost", normalized, tier)
			}
		}
		for _, coverage := range domain.PercentageCoverages() {
			if _, ok := table.PercentageCoverageRate[coverage]; !ok {
				return nil, fmt.Errorf("quote pricing engine: jurisdiction %s missing %s percentage", normalized, coverage)
			}
		}
		owned[normalized] = cloneCostTable(table)
	}
	return &QuotePricingEngine{tables: owned}, nil
}

// ComputeCost returns the monthly subtotal, taxes and total for the selections. The three figures
// are rounded to cents independently; intermediate sums are kept at full precision.
func (e *QuotePricingEngine) ComputeCost(jurisdiction string, flat domain.FlatCoverageSelection, percentage domain.PercentageCoverageSelection) (domain.QuoteCost, error) {
	if e == nil {
		return domain.QuoteCost{}, errors.New("quote pricing engine not initialised")
	}
	code := normalizeJurisdiction(jurisdiction)
	table, ok := e.tables[code]
	if !ok {
		return domain.QuoteCost{}, fmt.Errorf("%w: %q", ErrUnsupportedJurisdiction, jurisdiction)
	}

	subtotal, ok := table.FlatTypeCost[flat.Tier]
	if !ok {
		return domain.QuoteCost{}, fmt.Errorf("%w: unknown coverage tier %q", ErrQuotePricingInvalidInput, flat.Tier)
	}
	if flat.PetCoverage {
		subtotal = subtotal.Add(table.PetCoverageCost)
	}
	for _, coverage := range domain.PercentageCoverages() {
		if !percentage.Selected(coverage) {
			continue
		}
		rate := table.PercentageCoverageRate[coverage]
		subtotal = subtotal.Mul(decimal.NewFromInt(1).Add(rate.Div(hundred)))
	}

	taxes := subtotal.Mul(table.TaxRate).Div(hundred)
	total := subtotal.Add(taxes)

	return domain.QuoteCost{
		Subtotal: subtotal.Round(moneyPlaces),
		Taxes:    taxes.Round(moneyPlaces),
		Total:    total.Round(moneyPlaces),
	}, nil
}

// Supports reports whether a cost table exists for the jurisdiction.
func (e *QuotePricingEngine) Supports(jurisdiction string) bool {
	if e == nil {
		return false
	}
	_, ok := e.tables[normalizeJurisdiction(jurisdiction)]
	return ok
}

// Jurisdictions lists the configured rates ordered by code. Callers receive copies.
func (e *QuotePricingEngine) Jurisdictions() []domain.JurisdictionRates {
	if e == nil {
		return nil
	}
	codes := e.tables.Codes()
	rates := make([]domain.JurisdictionRates, 0, len(codes))
	for _, code := range codes {
		rates = append(rates, domain.JurisdictionRates{Code: code, Table: cloneCostTable(e.tables[code])})
	}
	return rates
}

func normalizeJurisdiction(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cloneCostTable(table domain.CoverageCostTable) domain.CoverageCostTable {
	clone := domain.CoverageCostTable{
		FlatTypeCost:           make(map[domain.CoverageTier]decimal.Decimal, len(table.FlatTypeCost)),
		PetCoverageCost:        table.PetCoverageCost,
		PercentageCoverageRate: make(map[domain.PercentageCoverage]decimal.Decimal, len(table.PercentageCoverageRate)),
		TaxRate:                table.TaxRate,
	}
	for tier, cost := range table.FlatTypeCost {
		clone.FlatTypeCost[tier] = cost
	}
	for coverage, rate := range table.PercentageCoverageRate {
		clone.PercentageCoverageRate[coverage] = rate
	}
	return clone
}
