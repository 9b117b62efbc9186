package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/briefer/config"
	srv "github.com/mohammad-safakhou/briefer/internal/server"
)

func watchCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "watch",
		Short: "Run the watch scheduler loop without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return srv.RunWatcher(cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
