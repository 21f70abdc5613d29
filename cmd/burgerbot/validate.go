package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"burgerbot/internal/config"
	"burgerbot/internal/task/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Parse and validate a config file without starting the bot.

Environment overrides (TELEGRAM_API_KEY, LOG_LEVEL, ...) and ./.env are
applied the same way "run" applies them.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	config.LoadDotEnv()
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	spec, err := scheduler.ParseSchedule(cfg.Poller.Schedule)
	if err != nil {
		return fmt.Errorf("invalid config: poller.schedule: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	fmt.Fprintf(out, "  Schedule:  %s\n", spec)
	fmt.Fprintf(out, "  Storage:   %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
	fmt.Fprintf(out, "  Fallback:  %s\n", cfg.Poller.FallbackProxy)
	fmt.Fprintf(out, "  Owners:    %d\n", len(cfg.Telegram.OwnerUserIDs))
	fmt.Fprintf(out, "  Ops:       %v (%s)\n", cfg.Ops.Enabled, cfg.Ops.Addr)
	return nil
}
