package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func listProviders(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	available := newGateway(ctx).Available()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "order:     %s\n", strings.Join(cfg.LLM.Order, ", "))
	if len(available) == 0 {
		fmt.Fprintln(out, "available: none")
		return nil
	}
	fmt.Fprintf(out, "available: %s\n", strings.Join(available, ", "))
	return nil
}
