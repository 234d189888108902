package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imobia/atende/internal/config"
	"github.com/imobia/atende/internal/wa"
)

func newSendCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "send <phone> <message>",
		Short: "Send a one-off WhatsApp message through the gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			client := wa.New(wa.Opts{
				Host:        cfg.WhatsApp.Host,
				InstanceID:  cfg.WhatsApp.InstanceID,
				Token:       cfg.WhatsApp.Token,
				DedupWindow: -1,
			})
			if err := client.SendText(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atende.yaml", "path to config file")
	return cmd
}
