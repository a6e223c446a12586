package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/homeplan/app"
	"github.com/kilianp07/homeplan/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "homeplan",
	Short: "Plan home storage charging against a time-of-use tariff",
	Long: `homeplan computes the cheapest charge/discharge schedule for home batteries
and electric vehicles over a tariff horizon and writes it as JSON or CSV.
Without --config the built-in ten-step scenario is solved without devices.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return run(cmd, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if cfg.Output.Path == "" || cfg.Output.Path == "-" {
		opts = append(opts, app.WithOutput(cmd.OutOrStdout()))
	}
	svc, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()
	_, err = svc.Run(ctx)
	return err
}
