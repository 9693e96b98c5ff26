package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/topic-harvester/internal/config"
)

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Discovers and stores articles about topics on chosen domains.",
		Long: `harvester runs a site-scoped search for every topic on every configured
domain, flags duplicate results, fetches the article content as Markdown (or
the PDF itself) and records everything in the configured stores.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the YAML config file")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Loads and validates the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: engine=%s scrape=%t dedup=%s\n",
				cfg.Engine().Name, cfg.Pipeline.Scrape, cfg.DedupMode())
			return nil
		},
	}
}
