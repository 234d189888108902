package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imobia/atende/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gdb, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gdb); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atende.yaml", "path to config file")
	return cmd
}
