package main

import (
	"github.com/spf13/cobra"

	"earmark/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string
}

// resolveServer returns the API address: the explicit flag wins, then the
// config file, then the built-in default.
func (c *commandContext) resolveServer() string {
	if *c.serverFlag != "" {
		return *c.serverFlag
	}
	if cfg, _, exists, err := config.Load(*c.configFlag); err == nil && exists {
		return cfg.Paths.APIBind
	}
	return config.Default().Paths.APIBind
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.resolveServer())
}

func newRootCommand() *cobra.Command {
	var serverFlag string
	var configFlag string

	ctx := &commandContext{serverFlag: &serverFlag, configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "earmark",
		Short:         "Control and observe a running earmarkd",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Address of the earmarkd API")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newSegmentsCommand(ctx))
	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newPauseCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
