package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	ethersub "github.com/ethersub/ethersub-go"
)

func newPlansCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans with live pricing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.close()

			catalog, err := app.client.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return writePlansOutput(cmd, catalog, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func writePlansOutput(cmd *cobra.Command, catalog *ethersub.Catalog, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.Plans)
	}

	out := cmd.OutOrStdout()
	for _, plan := range catalog.Plans {
		fmt.Fprintf(out, "%s  $%s/month\n", plan.Name, ethersub.FormatEther(plan.MonthlyUSD))
		if plan.PriceFailed {
			fmt.Fprintln(out, "  pricing temporarily unavailable")
		} else {
			fmt.Fprintf(out, "  1 month:   %s ETH\n", ethersub.FormatEther(plan.OneMonthCost.Native))
			fmt.Fprintf(out, "  12 months: %s ETH\n", ethersub.FormatEther(plan.TwelveMonthCost.Native))
		}
		names := make([]string, 0, len(plan.Features))
		for _, f := range plan.Features {
			names = append(names, f.Name)
		}
		fmt.Fprintf(out, "  features: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func newFeaturesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "features",
		Short: "List catalog features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.close()

			catalog, err := app.client.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.Features)
			}
			ids := make([]string, 0, len(catalog.Features))
			for id := range catalog.Features {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				f := catalog.Features[id]
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s: %s\n", f.ID, f.Name, f.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
