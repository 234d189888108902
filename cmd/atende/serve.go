package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/imobia/atende/internal/bot"
	"github.com/imobia/atende/internal/cep"
	"github.com/imobia/atende/internal/classify"
	"github.com/imobia/atende/internal/collect"
	"github.com/imobia/atende/internal/config"
	"github.com/imobia/atende/internal/consent"
	"github.com/imobia/atende/internal/convlog"
	"github.com/imobia/atende/internal/db"
	"github.com/imobia/atende/internal/identity"
	"github.com/imobia/atende/internal/session"
	"github.com/imobia/atende/internal/wa"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and conversation flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atende.yaml", "path to config file")
	return cmd
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gdb, err := db.Connect(cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gdb, nil
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	waClient := wa.New(wa.Opts{
		Host:        cfg.WhatsApp.Host,
		InstanceID:  cfg.WhatsApp.InstanceID,
		Token:       cfg.WhatsApp.Token,
		DedupWindow: cfg.DedupWindow(),
	})
	classifier := classify.New(classify.Opts{
		BaseURL: cfg.Classifier.BaseURL,
		Key:     cfg.Classifier.Key,
		Model:   cfg.Classifier.Model,
	})
	sessions := session.NewManager(session.ManagerOpts{Timeout: cfg.SessionTimeout()})

	orch := bot.New(bot.Opts{
		DB:       gdb,
		Sessions: sessions,
		Identity: identity.NewResolver(gdb),
		Consent: consent.NewLedger(consent.Opts{
			DB:            gdb,
			PolicyVersion: cfg.Consent.PolicyVersion,
			PolicyLink:    cfg.Consent.PolicyLink,
		}),
		Pipeline: collect.New(collect.Opts{
			Lookup: cep.New(cep.Opts{
				BaseURL: cfg.Lookup.BaseURL,
				Timeout: cfg.LookupTimeout(),
			}),
			MinAge:       cfg.Collection.MinAge,
			MaxRetries:   cfg.Collection.MaxRetries,
			ContactPhone: cfg.Handoff.ContactPhone,
		}),
		Recorder:      convlog.NewRecorder(gdb),
		Consolidator:  convlog.NewConsolidator(gdb, convlog.Remote{Proposer: classifier}),
		Sender:        waClient,
		Interpreter:   classifier,
		OperatorPhone: cfg.Handoff.OperatorPhone,
		ContactPhone:  cfg.Handoff.ContactPhone,
	})

	// Idle sessions are swept on a schedule so abandoned conversations do
	// not pin memory.
	sweeper := cron.New()
	sweepEvery := fmt.Sprintf("@every %ds", cfg.Session.SweepSec)
	if _, err := sweeper.AddFunc(sweepEvery, func() {
		if n := sessions.ExpireSweep(time.Now()); n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d idle sessions\n", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return bot.Start(ctx, bot.StartOpts{
		Orchestrator: orch,
		Listen:       fmt.Sprintf(":%d", cfg.Listen.Port),
		Out:          cmd.OutOrStdout(),
	})
}
