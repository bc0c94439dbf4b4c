package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show provider quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats := a.tracker.Stats(context.Background(), a.scope)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tDAILY\tLIMIT\tREMAINING\tMINUTE\tUSED\tRESETS")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d/%d\t%d%%\t%s\n",
				a.scope,
				stats.DailyCount, stats.DailyLimit, stats.DailyRemaining,
				stats.MinuteCount, stats.MinuteLimit,
				stats.PercentUsed,
				stats.ResetTime.Format("2006-01-02T15:04:05Z07:00"))
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
