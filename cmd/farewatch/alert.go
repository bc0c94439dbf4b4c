package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage price alerts",
	}
	cmd.AddCommand(newAlertAddCmd(), newAlertListCmd(), newAlertRemoveCmd())
	return cmd
}

func newAlertAddCmd() *cobra.Command {
	var (
		configPath  string
		userID      string
		origin      string
		destination string
		target      float64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a price alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			if origin == "" || destination == "" || target <= 0 {
				return fmt.Errorf("origin, destination and a positive target price are required")
			}

			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.repo.Create(context.Background(), userID, origin, destination, target)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "cli", "user the alert belongs to")
	cmd.Flags().StringVar(&origin, "origin", "", "origin airport code")
	cmd.Flags().StringVar(&destination, "destination", "", "destination airport code")
	cmd.Flags().Float64Var(&target, "target", 0, "trigger when price is at or below this")
	return cmd
}

func newAlertListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts still being watched",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			alerts, err := a.repo.ListActive(context.Background())
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Println("No active alerts.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tROUTE\tTARGET\tCURRENT\tCREATED")
			for _, al := range alerts {
				current := "-"
				if al.CurrentPrice != nil {
					current = fmt.Sprintf("%.2f", *al.CurrentPrice)
				}
				fmt.Fprintf(w, "%s\t%s\t%s-%s\t%.2f\t%s\t%s\n",
					al.ID, al.UserID, al.Origin, al.Destination, al.TargetPrice, current,
					al.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	return cmd
}

func newAlertRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Deactivate an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			return a.repo.Deactivate(context.Background(), args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	return cmd
}
