// Package main is the entry point for the currency converter bot.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/currencybot/core/buildinfo"
	corecmd "github.com/m3rciful/currencybot/core/cmd"
	coreconfig "github.com/m3rciful/currencybot/core/config"
	coretelegram "github.com/m3rciful/currencybot/core/telegram"
	"github.com/m3rciful/currencybot/currency/app"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "currencybot",
		Short:         "Telegram currency converter bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration (default $CONFIG_PATH)")
	root.AddCommand(serveCmd(), setWebhookCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (webhook server or long polling)",
		RunE:  serve,
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	return corecmd.Run(corecmd.Options{
		ConfigPath: path,
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
			return app.Bootstrap(ctx, cfg)
		},
	})
}

func setWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-webhook",
		Short: "Register the configured webhook URL with Telegram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := coreconfig.Load(corecmd.ResolveConfigPath(path, ""))
			if err != nil {
				return err
			}
			if cfg.Telegram.RunMode != coreconfig.RunModeWebhook {
				return fmt.Errorf("set-webhook: telegram.run_mode is %q, want %q", cfg.Telegram.RunMode, coreconfig.RunModeWebhook)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			url, err := coretelegram.RegisterWebhook(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", url)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "currencybot %s\n", buildinfo.String())
		},
	}
}
