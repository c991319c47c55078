package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "groupctl",
		Short:         "Group messaging client for a group communication daemon",
		Long:          "groupctl connects to a group communication daemon, joins groups and exchanges messages from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newChatCmd(),
	)
	return rootCmd
}
