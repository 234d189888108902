package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/imobia/atende/internal/alert"
)

func newAlertsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Work the operational alert queue",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "atende.yaml", "path to config file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List unresolved alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gdb, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			alerts, err := alert.Unresolved(gdb)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No unresolved alerts.")
				return nil
			}
			for _, a := range alerts {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d [%s] %s: %s\n", a.ID, a.Priority, a.Source, a.Subject)
			}
			return nil
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an alert as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid alert id: %s", args[0])
			}
			_, gdb, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := alert.Resolve(gdb, uint(id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alert #%d resolved.\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, resolve)
	return cmd
}
