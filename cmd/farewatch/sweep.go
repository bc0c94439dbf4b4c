package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep over the active alerts and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			deadline := time.Duration(a.cfg.Monitor.DeadlineSeconds) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), deadline)
			defer cancel()

			summary, runErr := a.engine.Run(ctx, "manual")
			a.engine.Drain()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	return cmd
}
