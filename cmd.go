package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Jorgeperez0825/botnext/internal/api"
	"github.com/Jorgeperez0825/botnext/internal/backtest"
	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/internal/reconciliation"
	"github.com/Jorgeperez0825/botnext/pkg/cache"
	"github.com/Jorgeperez0825/botnext/pkg/db"
	"github.com/Jorgeperez0825/botnext/pkg/i18n"
	marketbinance "github.com/Jorgeperez0825/botnext/pkg/market/binance"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop and the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.driver.Init(ctx); err != nil {
				return fmt.Errorf(i18n.Get("StateLoadFailed"), err)
			}
			logger.Infof(i18n.Get("ActiveTradesRestored"), a.driver.State.Count())
			if cfg.Trading.Stream {
				logger.Info(i18n.Get("StreamingEnabled"))
			} else {
				logger.Info(i18n.Get("PollingEnabled"))
			}

			mon := &monitor.Monitor{Bus: a.bus, Metrics: a.metrics, Sink: monitor.LogSink{Logger: logger}}
			mon.Start(ctx)
			reconciler := reconciliation.NewService(a.driver.Trading, a.driver.State, a.driver.Exits, a.bus, cfg.Trading.ReconcileInterval, logger)
			reconciler.SetPairLocker(a.driver)
			reconciler.Start(ctx)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.driver.Run(gctx) })

			if cfg.API.Enabled {
				if cfg.API.AdminPasswordHash == "" {
					logger.Warn(i18n.Get("AuthDisabled"))
				}
				server := a.apiServer()
				g.Go(func() error {
					logger.Infof(i18n.Get("ServerListening"), cfg.API.Port)
					if err := server.Start(fmt.Sprintf(":%d", cfg.API.Port)); err != nil {
						return fmt.Errorf(i18n.Get("APIServerError"), err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return server.Shutdown(shutdownCtx)
				})
			} else {
				logger.Info(i18n.Get("APIDisabled"))
			}

			err = g.Wait()
			logger.Info(i18n.Get("ShuttingDown"))
			a.Close()
			logger.Info(i18n.Get("ShutdownComplete"))
			return err
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "evaluate <pair>",
		Short: "Run one evaluation cycle for a pair and print the signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !live {
				cfg.Trading.DryRun = true
			}
			cfg.Trading.Stream = false
			pair := strings.ToUpper(strings.TrimSpace(args[0]))
			if !containsPair(cfg.Trading.Pairs, pair) {
				cfg.Trading.Pairs = append(cfg.Trading.Pairs, pair)
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.driver.Init(cmd.Context()); err != nil {
				return fmt.Errorf(i18n.Get("StateLoadFailed"), err)
			}

			sig, evalErr := a.driver.EvaluatePair(cmd.Context(), pair)
			if err := writeJSON(cmd, sig); err != nil {
				return err
			}
			return evalErr
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "let an actionable signal place a real order")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	var (
		limit      int
		days       int
		investment float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "backtest <pair>",
		Short: "Replay historical candles through the signal pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pair := strings.ToUpper(strings.TrimSpace(args[0]))

			src := buildSource(cfg, logger)
			var candles []market.Candle
			rs, ranged := src.(backtest.RangeSource)
			if days > 0 && ranged {
				end := time.Now().UTC()
				candles, err = backtest.LoadRange(ctx, rs, pair, cfg.Trading.Interval, end.AddDate(0, 0, -days), end)
			} else {
				candles, err = backtest.LoadHistory(ctx, src, pair, cfg.Trading.Interval, limit)
			}
			if err != nil {
				return err
			}

			tuning, err := loadTuning(cfg)
			if err != nil {
				return err
			}
			bcfg := backtest.Config{
				InvestmentAmount: cfg.Bot.InvestmentAmount,
				MinConfidence:    cfg.Signal.MinConfidence,
				FeeRate:          cfg.Paper.FeeRate,
				SlippageBps:      cfg.Paper.SlippageBps,
				MaxLossPercent:   cfg.Bot.MaxLossPercent,
				MinProfitPercent: cfg.Bot.MinProfitPercent,
				Window:           cfg.Trading.MaxCandles,
			}
			if investment > 0 {
				bcfg.InvestmentAmount = investment
			}

			res, err := backtest.NewRunner(tuning, bcfg, logger).Run(ctx, pair, candles)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %d candles (%s)\n", res.Symbol, res.Candles, cfg.Trading.Interval)
			fmt.Fprintf(out, "signals       BUY=%d SELL=%d HOLD=%d\n", res.Signals["BUY"], res.Signals["SELL"], res.Signals["HOLD"])
			fmt.Fprintf(out, "trades        %d\n", res.Trades)
			fmt.Fprintf(out, "profit/loss   %.4f\n", res.ProfitLoss)
			fmt.Fprintf(out, "win rate      %.2f%%\n", res.WinRate)
			fmt.Fprintf(out, "avg profit    %.4f\n", res.AvgProfit)
			fmt.Fprintf(out, "avg loss      %.4f\n", res.AvgLoss)
			fmt.Fprintf(out, "max drawdown  %.4f\n", res.MaxDrawdown)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", backtest.MaxHistory, "number of most recent candles to replay")
	cmd.Flags().IntVar(&days, "days", 0, "replay the last N days instead of --limit candles")
	cmd.Flags().Float64Var(&investment, "investment", 0, "quote amount per entry (default bot.investment_amount)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database, exchange and cache connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			checks := []struct {
				name string
				run  func(context.Context) error
			}{
				{"database", func(ctx context.Context) error {
					database, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN)
					if err != nil {
						return err
					}
					defer database.Close()
					return database.DB.PingContext(ctx)
				}},
				{"binance", func(ctx context.Context) error {
					if mockFeed {
						return nil
					}
					client := marketbinance.NewClient(cfg.Binance.RESTURL, cfg.Binance.Testnet)
					if err := client.Ping(ctx); err != nil {
						return err
					}
					_, err := client.GetTickerPrice(ctx, cfg.Trading.Pairs[0])
					return err
				}},
				{"cache", func(ctx context.Context) error {
					if !strings.EqualFold(cfg.Cache.Backend, "redis") {
						return nil
					}
					rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "botnext:")
					if err != nil {
						return err
					}
					return rc.Close()
				}},
			}

			var failed []error
			out := cmd.OutOrStdout()
			for _, c := range checks {
				if err := c.run(ctx); err != nil {
					fmt.Fprintf(out, "%-10s FAIL  %v\n", c.name, err)
					failed = append(failed, fmt.Errorf("%s: %w", c.name, err))
					continue
				}
				fmt.Fprintf(out, "%-10s ok\n", c.name)
			}
			return errors.Join(failed...)
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash for api.admin_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := api.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func containsPair(pairs []string, pair string) bool {
	for _, p := range pairs {
		if strings.EqualFold(p, pair) {
			return true
		}
	}
	return false
}
