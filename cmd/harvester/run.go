package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/config"
	"github.com/JakeFAU/topic-harvester/internal/dedup"
	"github.com/JakeFAU/topic-harvester/internal/input"
	"github.com/JakeFAU/topic-harvester/internal/logging"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

type runOptions struct {
	noScrape bool
	dedup    string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one harvest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}
			return runHarvest(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&opts.noScrape, "no-scrape", false, "persist search results without fetching content")
	cmd.Flags().StringVar(&opts.dedup, "dedup", "", "override pipeline.dedup (on, off, batch)")
	return cmd
}

func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if o.noScrape {
		cfg.Pipeline.Scrape = false
	}
	if cmd.Flags().Changed("dedup") {
		if _, err := dedup.ParseMode(o.dedup); err != nil {
			return fmt.Errorf("--dedup: %w", err)
		}
		cfg.Pipeline.Dedup = o.dedup
	}
	return nil
}

func runHarvest(parent context.Context, cfg config.Config) error {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.OutputPaths,
	})
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Serve(ctx, cfg.Metrics.Addr, logger.Named("metrics"))

	topics, err := input.LoadTopics(cfg.Inputs.Topics)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	domains, err := input.LoadDomains(cfg.Inputs.Domains)
	if err != nil {
		return fmt.Errorf("load domains: %w", err)
	}
	logger.Info("inputs loaded", zap.Int("topics", len(topics)), zap.Int("domains", len(domains)))

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, _, err := app.orch.Run(ctx, topics, domains); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	return nil
}
