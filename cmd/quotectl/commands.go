package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/platform/config"
	"github.com/homequote/api/internal/services"
)

func newRootCommand() *cobra.Command {
	var tableFile string

	root := &cobra.Command{
		Use:   "quotectl",
		Short: "Price home insurance quotes against the coverage cost tables",
		Long: `quotectl runs the quote pricing engine without the API.

Examples:
  quotectl price --state CA --tier Premium --pet --flood
  quotectl jurisdictions --table rates.yaml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&tableFile, "table", "", "YAML cost table file (defaults to the built-in tables)")

	loadEngine := func() (*services.QuotePricingEngine, error) {
		tables, err := config.LoadCoverageCostTables(tableFile)
		if err != nil {
			return nil, err
		}
		return services.NewQuotePricingEngine(tables)
	}

	root.AddCommand(newPriceCommand(loadEngine))
	root.AddCommand(newJurisdictionsCommand(loadEngine))
	return root
}

type priceOptions struct {
	state  string
	tier   string
	pet    bool
	flood  bool
	format string
}

type priceOutput struct {
	State           string `json:"state"`
	MonthlySubtotal string `json:"monthly_subtotal"`
	MonthlyTaxes    string `json:"monthly_taxes"`
	MonthlyTotal    string `json:"monthly_total"`
}

func newPriceCommand(loadEngine func() (*services.QuotePricingEngine, error)) *cobra.Command {
	opts := priceOptions{}
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Compute the monthly cost of a coverage selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tier, err := parseTier(opts.tier)
			if err != nil {
				return err
			}
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			state := strings.ToUpper(strings.TrimSpace(opts.state))
			cost, err := engine.ComputeCost(state,
				domain.FlatCoverageSelection{Tier: tier, PetCoverage: opts.pet},
				domain.PercentageCoverageSelection{FloodCoverage: opts.flood},
			)
			if err != nil {
				return err
			}
			out := priceOutput{
				State:           state,
				MonthlySubtotal: cost.Subtotal.StringFixed(2),
				MonthlyTaxes:    cost.Taxes.StringFixed(2),
				MonthlyTotal:    cost.Total.StringFixed(2),
			}
			return writePrice(cmd.OutOrStdout(), opts.format, out)
		},
	}
	cmd.Flags().StringVar(&opts.state, "state", "", "two letter jurisdiction code")
	cmd.Flags().StringVar(&opts.tier, "tier", string(domain.CoverageTierBasic), "coverage tier (Basic or Premium)")
	cmd.Flags().BoolVar(&opts.pet, "pet", false, "include pet coverage")
	cmd.Flags().BoolVar(&opts.flood, "flood", false, "include flood coverage")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newJurisdictionsCommand(loadEngine func() (*services.QuotePricingEngine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "jurisdictions",
		Short: "Print the coverage cost table of every supported jurisdiction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			return writeJurisdictions(cmd.OutOrStdout(), engine.Jurisdictions())
		},
	}
}

// parseTier accepts the tier name in any letter case.
func parseTier(raw string) (domain.CoverageTier, error) {
	for _, tier := range domain.CoverageTiers() {
		if strings.EqualFold(strings.TrimSpace(raw), string(tier)) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unsupported tier %q", raw)
}

func writePrice(w io.Writer, format string, out priceOutput) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "", "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "state\t%s\n", out.State)
		fmt.Fprintf(tw, "subtotal\t%s\n", out.MonthlySubtotal)
		fmt.Fprintf(tw, "taxes\t%s\n", out.MonthlyTaxes)
		fmt.Fprintf(tw, "total\t%s\n", out.MonthlyTotal)
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeJurisdictions(w io.Writer, rates []domain.JurisdictionRates) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"STATE"}
	for _, tier := range domain.CoverageTiers() {
		header = append(header, strings.ToUpper(string(tier)))
	}
	header = append(header, "PET")
	for _, coverage := range domain.PercentageCoverages() {
		header = append(header, strings.ToUpper(string(coverage))+"%")
	}
	header = append(header, "TAX%")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, rate := range rates {
		row := []string{rate.Code}
		for _, tier := range domain.CoverageTiers() {
			row = append(row, rate.Table.FlatTypeCost[tier].StringFixed(2))
		}
		row = append(row, rate.Table.PetCoverageCost.StringFixed(2))
		for _, coverage := range domain.PercentageCoverages() {
			row = append(row, rate.Table.PercentageCoverageRate[coverage].String())
		}
		row = append(row, rate.Table.TaxRate.String())
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
