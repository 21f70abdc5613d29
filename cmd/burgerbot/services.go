package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"burgerbot/internal/app"
	"burgerbot/internal/catalog"
	"burgerbot/internal/config"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the service ids the bot can watch",
	Long: `List the built-in services plus any added in the config file.

A missing or unreadable config file falls back to the built-in list.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		cat := catalog.New("", nil)
		if cfg, err := config.NewConfigManager(cfgPath).Parse(); err == nil {
			cat = app.NewCatalog(cfg)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %v; showing built-in services\n", err)
		}

		out := cmd.OutOrStdout()
		for _, e := range cat.All() {
			fmt.Fprintf(out, "%d - %s\n", e.ID, e.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}
