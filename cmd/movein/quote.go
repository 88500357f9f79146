package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bher20/movein/internal/pricing"
)

func newQuoteCmd() *cobra.Command {
	var (
		average float64
		preset  string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "quote <catalog.json>",
		Short: "Rank a plan catalog file against a usage profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := readCatalog(args[0])
			if err != nil {
				return err
			}
			usage := pricing.DefaultUsage
			switch {
			case preset != "":
				if usage, err = pricing.PresetUsage(pricing.Preset(preset)); err != nil {
					return err
				}
			case average > 0:
				if usage, err = pricing.ScaleTo(pricing.DefaultUsage, average); err != nil {
					return err
				}
			}
			return printQuote(cmd.OutOrStdout(), pricing.Visible(pricing.Rank(plans, usage), all), usage)
		},
	}
	cmd.Flags().Float64Var(&average, "average", 0, "average monthly kWh")
	cmd.Flags().StringVar(&preset, "preset", "", "usage preset (small, medium, large)")
	cmd.Flags().BoolVar(&all, "all", false, "show every plan instead of the top picks")
	cmd.MarkFlagsMutuallyExclusive("average", "preset")
	return cmd
}

func readCatalog(path string) ([]pricing.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var plans []pricing.Plan
	if err := json.NewDecoder(f).Decode(&plans); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return plans, nil
}

func printQuote(out io.Writer, ranked []pricing.RankedPlan, usage pricing.Usage) error {
	fmt.Fprintf(out, "usage: %.0f kWh/yr (avg %.0f kWh/mo)\n\n", usage.Total(), usage.Average())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAN\tPROVIDER\tANNUAL\tMONTHLY\tBADGE")
	for _, p := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%s\t$%s\t$%s\t%s\n",
			p.Rank, p.Name, p.Provider,
			p.AnnualCost.StringFixed(2), p.MonthlyEstimate.StringFixed(2), p.Badge)
	}
	return tw.Flush()
}
