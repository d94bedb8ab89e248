package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/internal/analysis"
	"github.com/Jorgeperez0825/botnext/internal/api"
	"github.com/Jorgeperez0825/botnext/internal/engine"
	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/internal/order"
	"github.com/Jorgeperez0825/botnext/internal/persistence"
	"github.com/Jorgeperez0825/botnext/internal/risk"
	"github.com/Jorgeperez0825/botnext/internal/sentiment"
	"github.com/Jorgeperez0825/botnext/internal/state"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/cache"
	"github.com/Jorgeperez0825/botnext/pkg/config"
	"github.com/Jorgeperez0825/botnext/pkg/db"
	exspot "github.com/Jorgeperez0825/botnext/pkg/exchanges/binance/spot"
	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	"github.com/Jorgeperez0825/botnext/pkg/i18n"
	marketbinance "github.com/Jorgeperez0825/botnext/pkg/market/binance"
)

// app is the assembled bot: storage, venue, analyzers and the driver.
type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	db         *db.Database
	bus        *events.Bus
	metrics    *monitor.SystemMetrics
	conditions *persistence.BatchWriter
	driver     *engine.Driver

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("shutdown step failed")
		}
	}
	a.closers = nil
}

// newApp wires every component from cfg. The caller owns Close.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, bus: events.NewBus(), metrics: monitor.NewSystemMetrics()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	database, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf(i18n.Get("DBInitFailed"), err)
	}
	a.db = database
	a.closers = append(a.closers, database.Close)
	if err := db.ApplyMigrations(database); err != nil {
		return nil, fmt.Errorf(i18n.Get("DBMigrationsFailed"), err)
	}
	logger.Infof(i18n.Get("UsingDatabase"), database.Driver)

	tuning, err := loadTuning(cfg)
	if err != nil {
		return nil, err
	}

	a.conditions = persistence.NewBatchWriter(database, 50, 5*time.Second, logger)
	a.closers = append(a.closers, a.conditions.Close)

	adapter, err := buildSentiment(cfg, logger, a)
	if err != nil {
		return nil, err
	}

	// The paper venue prices fills from the driver's live snapshot, which
	// only exists once the driver is built.
	var driver *engine.Driver
	trading, err := buildVenue(cfg, logger, func(symbol string) (float64, bool) {
		if driver == nil {
			return 0, false
		}
		return driver.LastPrice(symbol)
	})
	if err != nil {
		return nil, err
	}

	driver = engine.New(engine.Config{
		Pairs:               cfg.Trading.Pairs,
		Interval:            cfg.Trading.Interval,
		CycleInterval:       cfg.Trading.CycleInterval,
		WarmupCandles:       cfg.Trading.WarmupCandles,
		MaxCandles:          cfg.Trading.MaxCandles,
		StaleAfter:          cfg.Trading.StaleAfter,
		OrderBookDepth:      cfg.Trading.OrderBookDepth,
		InvestmentAmount:    cfg.Bot.InvestmentAmount,
		MaxConcurrentTrades: cfg.Bot.MaxConcurrentTrades,
		MinConfidence:       cfg.Signal.MinConfidence,
		Stream:              cfg.Trading.Stream,
		DryRun:              cfg.Trading.DryRun,
		Timeouts: engine.Timeouts{
			REST:      cfg.Timeouts.REST,
			OrderBook: cfg.Timeouts.OrderBook,
			Order:     cfg.Timeouts.Order,
			Sentiment: cfg.Timeouts.Sentiment,
			Store:     cfg.Timeouts.Store,
		},
	}, engine.Deps{
		Source:     buildSource(cfg, logger),
		Cache:      buildCache(ctx, cfg, logger, a),
		Store:      database,
		Trading:    trading,
		Sentiment:  adapter,
		Scorer:     analysis.NewScorer(),
		Classifier: analysis.NewClassifier(),
		Estimator:  analysis.NewEstimator(cfg.Bot.MaxSpreadPercent),
		Blender:    strategy.NewBlender(tuning),
		Guard:      risk.NewGuard(trading, cfg.Bot.MinOrderValue),
		Executor:   order.NewExecutor(trading, cfg.Timeouts.Order, cfg.Paper.FeeRate, logger),
		State:      state.NewManager(database),
		Exits:      risk.NewExitMonitor(cfg.Bot.MaxLossPercent, cfg.Bot.MinProfitPercent),
		Tracker:    risk.NewTracker(),
		Conditions: a.conditions,
		Bus:        a.bus,
		Metrics:    a.metrics,
		Logger:     logger,
	})
	a.driver = driver

	if cfg.Trading.DryRun {
		logger.Info(i18n.Get("DryRunMode"))
	} else {
		logger.Warn(i18n.Get("LiveMode"))
	}
	logger.Infof(i18n.Get("PairsConfigured"), strings.Join(cfg.Trading.Pairs, ", "))
	return a, nil
}

// loadTuning applies the signal section on top of the defaults unless a
// tuning file is given, in which case the file is authoritative.
func loadTuning(cfg *config.Config) (strategy.Tuning, error) {
	tuning, err := strategy.LoadTuning(cfg.Signal.TuningFile)
	if err != nil {
		return tuning, fmt.Errorf("load tuning: %w", err)
	}
	if cfg.Signal.TuningFile == "" {
		tuning.BaseThreshold = cfg.Signal.BaseThreshold
		tuning.ConfidenceMultiplier = cfg.Signal.ConfidenceMultiplier
	}
	if err := tuning.Validate(); err != nil {
		return tuning, fmt.Errorf("tuning: %w", err)
	}
	return tuning, nil
}

func buildSource(cfg *config.Config, logger logrus.FieldLogger) market.DataSource {
	if mockFeed {
		return market.NewMockSource(time.Now().UnixNano())
	}
	return &market.BinanceSource{
		REST:   marketbinance.NewClient(cfg.Binance.RESTURL, cfg.Binance.Testnet),
		Stream: marketbinance.NewStreamClient(cfg.Binance.StreamURL, cfg.Binance.Testnet, logger),
	}
}

// buildCache returns the snapshot mirror. Redis failures fall back to memory.
func buildCache(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, a *app) *market.SnapshotCache {
	var store cache.Store = cache.NewShardedCache()
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rc, err := cache.NewRedisCache(pingCtx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "botnext:")
		cancel()
		if err != nil {
			logger.Warnf(i18n.Get("CacheFallback"), err)
		} else {
			store = rc
			a.closers = append(a.closers, rc.Close)
		}
	}
	return &market.SnapshotCache{Store: store, TTL: cfg.Cache.TTL}
}

func buildVenue(cfg *config.Config, logger logrus.FieldLogger, price order.PriceFunc) (exchange.Gateway, error) {
	if cfg.Trading.DryRun {
		return order.NewPaperExchange(order.PaperConfig{
			QuoteAsset:   cfg.Paper.QuoteAsset,
			InitialQuote: cfg.Paper.InitialQuote,
			FeeRate:      cfg.Paper.FeeRate,
			SlippageBps:  cfg.Paper.SlippageBps,
		}, price), nil
	}
	if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
		return nil, errors.New("binance api key and secret are required for live trading")
	}
	md := marketbinance.NewClient(cfg.Binance.RESTURL, cfg.Binance.Testnet)
	logger.WithField("base_url", md.BaseURL).Info("binance spot venue ready")
	return exspot.New(exspot.Config{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		BaseURL:   cfg.Binance.RESTURL,
		Testnet:   cfg.Binance.Testnet,
	}, md), nil
}

func buildSentiment(cfg *config.Config, logger logrus.FieldLogger, a *app) (*sentiment.Adapter, error) {
	var provider sentiment.Provider
	switch strings.ToLower(cfg.Sentiment.Provider) {
	case "", "none":
	case "llm":
		if cfg.Sentiment.APIKey == "" {
			logger.Warn("sentiment provider llm has no api key, disabling")
			break
		}
		provider = sentiment.NewLLMProvider(cfg.Sentiment.Endpoint, cfg.Sentiment.APIKey, cfg.Sentiment.Model, cfg.Sentiment.MaxTokens)
	case "grpc":
		gp, err := sentiment.NewGRPCProvider(cfg.Sentiment.GRPCAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gp.Close)
		provider = gp
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Sentiment.Provider)
	}

	if provider == nil {
		logger.Info(i18n.Get("SentimentDisabled"))
	} else {
		logger.Infof(i18n.Get("SentimentEnabled"), cfg.Sentiment.Provider)
	}
	return sentiment.NewAdapter(provider, cfg.Timeouts.Sentiment, logger), nil
}

func (a *app) apiServer() *api.Server {
	return api.NewServer(api.Options{
		Engine:            a.driver,
		Bus:               a.bus,
		Logger:            a.logger,
		JWTSecret:         a.cfg.API.JWTSecret,
		AdminUser:         a.cfg.API.AdminUser,
		AdminPasswordHash: a.cfg.API.AdminPasswordHash,
		RequestsPerSecond: a.cfg.API.RequestsPerSecond,
		Version:           buildVersion,
	})
}
