package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jorgeperez0825/botnext/pkg/config"
	"github.com/Jorgeperez0825/botnext/pkg/i18n"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

var buildVersion = "dev"

var (
	cfgFile  string
	mockFeed bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "botnext",
		Short:         "Multi-signal spot trading bot for Binance.US",
		Long:          "botnext blends technical indicators, market regime, order book pressure and optional sentiment into BUY/SELL/HOLD decisions per pair.",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./botnext.yaml)")
	root.PersistentFlags().BoolVar(&mockFeed, "mock", false, "use the synthetic market feed instead of Binance (implies dry run)")

	root.AddCommand(
		newRunCmd(),
		newEvaluateCmd(),
		newBacktestCmd(),
		newHealthCmd(),
		newHashPasswordCmd(),
	)
	return root
}

// loadConfig reads and validates config, then builds the process logger.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}
	if mockFeed {
		cfg.Trading.DryRun = true
	}
	i18n.SetLanguage(i18n.Language(cfg.Logging.Language))
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info(i18n.Get("Starting"))
	logger.Infof(i18n.Get("ConfigLoaded"), cfg.Trading.Interval, cfg.Trading.CycleInterval)
	return cfg, logger, nil
}
