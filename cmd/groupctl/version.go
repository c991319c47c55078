package main

import (
	"fmt"

	"github.com/danmuck/groupctl/internal/session"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client library version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "groupctl %s\n", session.Version())
			return err
		},
	}
}
