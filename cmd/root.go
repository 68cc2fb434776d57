package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ethersubctl",
		Short:         "EtherSub subscription client: browse plans and manage on-chain subscriptions",
		Long:          "ethersubctl talks to the EtherSub subscription contract on Sepolia: list plans and features with live pricing, subscribe or cancel with a local key, and run operator maintenance.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().String("rpc-url", "", "Ethereum JSON-RPC endpoint (env ETHERSUB_RPC_URL)")
	rootCmd.PersistentFlags().String("private-key", "", "Hex private key for signing (env ETHERSUB_PRIVATE_KEY)")
	rootCmd.PersistentFlags().String("contract", "", "Subscription contract address (default: the Sepolia deployment)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log component activity to stderr")

	rootCmd.AddCommand(
		newVersionCmd(),
		newPlansCmd(),
		newFeaturesCmd(),
		newSubscriptionsCmd(),
		newSubscribeCmd(),
		newCancelCmd(),
		newAdminCmd(),
	)

	return rootCmd
}
