package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) debugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "debug",
		Short:  "Low-level commands for debugging",
		Hidden: true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "metrics",
		Short: "Load the repository and print the collected metrics",
		Long: `Load the repository, merging divergent operation heads if there are
any, and print this process's metrics in the Prometheus text format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			return c.metrics.Write(cmd.OutOrStdout())
		},
	})
	return cmd
}
