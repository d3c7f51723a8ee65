package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ledgerToday(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	ledger, err := openLedger(ctx, cfg.Ledger.Backend)
	if err != nil {
		return err
	}
	defer ledger.Close()

	keys := ledger.Keys()
	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	fmt.Fprintf(out, "%d action(s) within retention %s\n", len(keys), ledger.Retention())
	return nil
}
