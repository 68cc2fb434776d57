package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	ethersub "github.com/ethersub/ethersub-go"
)

func newSubscriptionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "List the key account's active subscriptions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			views, err := app.client.LoadActiveSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			return writeSubscriptionsOutput(cmd, views, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func writeSubscriptionsOutput(cmd *cobra.Command, views []ethersub.SubscriptionView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	out := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(out, "no active subscriptions")
		return nil
	}
	for _, view := range views {
		fmt.Fprintf(out, "%s  %s remaining, paid %s ETH\n",
			view.PlanName,
			ethersub.FormatRemaining(view.SecondsRemaining),
			ethersub.FormatEther(view.AmountPaid))
		if len(view.Features) > 0 {
			fmt.Fprintf(out, "  features: %s\n", strings.Join(view.Features, ", "))
		}
	}
	return nil
}
