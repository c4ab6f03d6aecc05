package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/homequote/api/internal/domain"
)

var jurisdictionCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// DefaultCoverageCostTables returns the built-in rates for the supported states.
func DefaultCoverageCostTables() domain.CoverageCostTables {
	standard := func(flood, tax string) domain.CoverageCostTable {
		return domain.CoverageCostTable{
			FlatTypeCost: map[domain.CoverageTier]decimal.Decimal{
				domain.CoverageTierBasic:   decimal.NewFromInt(20),
				domain.CoverageTierPremium: decimal.NewFromInt(40),
			},
			PetCoverageCost: decimal.NewFromInt(20),
			PercentageCoverageRate: map[domain.PercentageCoverage]decimal.Decimal{
				domain.PercentageCoverageFlood: decimal.RequireFromString(flood),
			},
			TaxRate: decimal.RequireFromString(tax),
		}
	}
	return domain.CoverageCostTables{
		"CA": standard("2", "1"),
		"TX": standard("50", "0.5"),
		"NY": standard("10", "2"),
	}
}

type coverageTableFile struct {
	Jurisdictions map[string]coverageTableEntry `yaml:"jurisdictions"`
}

type coverageTableEntry struct {
	Tiers           map[string]string `yaml:"tiers"`
	Pet             string            `yaml:"pet"`
	FloodPercentage string            `yaml:"floodPercentage"`
	TaxRate         string            `yaml:"taxRate"`
}

// LoadCoverageCostTables returns the default tables when path is empty and otherwise
// parses the YAML file at path. The file replaces the defaults entirely.
func LoadCoverageCostTables(path string) (domain.CoverageCostTables, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCoverageCostTables(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read coverage table %s: %w", path, err)
	}
	tables, err := ParseCoverageCostTables(raw)
	if err != nil {
		return nil, fmt.Errorf("config: coverage table %s: %w", path, err)
	}
	return tables, nil
}

// ParseCoverageCostTables decodes and validates a YAML coverage table document.
func ParseCoverageCostTables(raw []byte) (domain.CoverageCostTables, error) {
	var file coverageTableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(file.Jurisdictions) == 0 {
		return nil, errors.New("no jurisdictions defined")
	}

	codes := make([]string, 0, len(file.Jurisdictions))
	for code := range file.Jurisdictions {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	tables := make(domain.CoverageCostTables, len(codes))
	for _, code := range codes {
		if !jurisdictionCodePattern.MatchString(code) {
			return nil, fmt.Errorf("jurisdiction %q: code must be two uppercase letters", code)
		}
		table, err := file.Jurisdictions[code].toTable()
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s: %w", code, err)
		}
		tables[code] = table
	}
	return tables, nil
}

func (e coverageTableEntry) toTable() (domain.CoverageCostTable, error) {
	table := domain.CoverageCostTable{
		FlatTypeCost:           make(map[domain.CoverageTier]decimal.Decimal, len(e.Tiers)),
		PercentageCoverageRate: make(map[domain.PercentageCoverage]decimal.Decimal),
	}
	for name := range e.Tiers {
		if !domain.CoverageTier(name).Valid() {
			return domain.CoverageCostTable{}, fmt.Errorf("unknown tier %q", name)
		}
	}
	for _, tier := range domain.CoverageTiers() {
		raw, ok := e.Tiers[string(tier)]
		if !ok {
			return domain.CoverageCostTable{}, fmt.Errorf("tier %s is required", tier)
		}
		value, err := parseAmount("tiers."+string(tier), raw)
		if err != nil {
			return domain.CoverageCostTable{}, err
		}
		table.FlatTypeCost[tier] = value
	}

	var err error
	if table.PetCoverageCost, err = parseAmount("pet", e.Pet); err != nil {
		return domain.CoverageCostTable{}, err
	}
	flood, err := parseAmount("floodPercentage", e.FloodPercentage)
	if err != nil {
		return domain.CoverageCostTable{}, err
	}
	table.PercentageCoverageRate[domain.PercentageCoverageFlood] = flood
	if table.TaxRate, err = parseAmount("taxRate", e.TaxRate); err != nil {
		return domain.CoverageCostTable{}, err
	}
	return table, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", field)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	if value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", field)
	}
	return value, nil
}
