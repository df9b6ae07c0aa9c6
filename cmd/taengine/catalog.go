package main

import (
	"github.com/spf13/cobra"

	"ta-engine/internal/indicator"
	"ta-engine/internal/pattern"
)

func newIndicatorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "indicators",
		Short: "list indicators with their parameter schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), indicator.DefaultRegistry().List())
		},
	}
}

func newPatternsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "list candlestick patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), pattern.DefaultRegistry().List())
		},
	}
}
