package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/farewatch/farewatch/internal/observ"
)

var version = "dev"

func main() {
	observ.SetVersion(version)

	root := &cobra.Command{
		Use:     "farewatch",
		Short:   "Farewatch - price alerts over cached, quota-bound fare lookups",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newStatsCmd(),
		newAlertCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
