package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/Jorgeperez0825/botnext/pkg/secrets"
)

// Config holds every process-wide setting. It is read-only once Load returns.
type Config struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	Bot       BotConfig       `mapstructure:"bot"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	API       APIConfig       `mapstructure:"api"`
	Paper     PaperConfig     `mapstructure:"paper"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	GCP       GCPConfig       `mapstructure:"gcp"`
}

type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	RESTURL   string `mapstructure:"rest_url"`
	StreamURL string `mapstructure:"stream_url"`
	Testnet   bool   `mapstructure:"testnet"`
}

// BotConfig carries the per-trade money management limits.
type BotConfig struct {
	MaxConcurrentTrades int     `mapstructure:"max_concurrent_trades"`
	InvestmentAmount    float64 `mapstructure:"investment_amount"`
	MaxLossPercent      float64 `mapstructure:"max_loss_percent"`
	MinProfitPercent    float64 `mapstructure:"min_profit_percent"`
	MinOrderValue       float64 `mapstructure:"min_order_value"`
	MaxSpreadPercent    float64 `mapstructure:"max_spread_percent"`
}

type TradingConfig struct {
	Pairs          []string      `mapstructure:"pairs"`
	Interval       string        `mapstructure:"interval"`
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	WarmupCandles  int           `mapstructure:"warmup_candles"`
	MaxCandles     int           `mapstructure:"max_candles"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	OrderBookDepth int           `mapstructure:"order_book_depth"`
	DryRun         bool          `mapstructure:"dry_run"`
	Stream         bool          `mapstructure:"stream"`

	// ReconcileInterval is how often active trades are checked against
	// venue balances. Zero disables reconciliation.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// SignalConfig exposes the thresholds that differed between bot variants.
type SignalConfig struct {
	MinConfidence        float64 `mapstructure:"min_confidence"`
	ConfidenceMultiplier float64 `mapstructure:"confidence_multiplier"`
	BaseThreshold        float64 `mapstructure:"base_threshold"`
	TuningFile           string  `mapstructure:"tuning_file"`
}

type TimeoutConfig struct {
	REST      time.Duration `mapstructure:"rest"`
	OrderBook time.Duration `mapstructure:"order_book"`
	Order     time.Duration `mapstructure:"order"`
	Sentiment time.Duration `mapstructure:"sentiment"`
	Store     time.Duration `mapstructure:"store"`
}

type SentimentConfig struct {
	Provider  string `mapstructure:"provider"` // none, llm, grpc
	Endpoint  string `mapstructure:"endpoint"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	GRPCAddr  string `mapstructure:"grpc_addr"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type APIConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	Port              int     `mapstructure:"port"`
	JWTSecret         string  `mapstructure:"jwt_secret"`
	AdminUser         string  `mapstructure:"admin_user"`
	AdminPasswordHash string  `mapstructure:"admin_password_hash"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// PaperConfig drives the simulated exchange used in dry-run mode.
type PaperConfig struct {
	InitialQuote float64 `mapstructure:"initial_quote"`
	QuoteAsset   string  `mapstructure:"quote_asset"`
	FeeRate      float64 `mapstructure:"fee_rate"`
	SlippageBps  float64 `mapstructure:"slippage_bps"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Language string `mapstructure:"language"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

// Load reads .env, an optional config file and BOTNEXT_* variables into Config.
func Load(configPath string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("botnext")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BOTNEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Trading.Pairs = normalizePairs(cfg.Trading.Pairs)

	overrideFromEnv(&cfg)

	if cfg.GCP.UseSecrets && cfg.GCP.ProjectID != "" {
		if err := loadSecretsFromGCP(context.Background(), &cfg, logrus.StandardLogger()); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.api_secret", "")
	v.SetDefault("binance.rest_url", "https://api.binance.us")
	v.SetDefault("binance.stream_url", "wss://stream.binance.us:9443")
	v.SetDefault("binance.testnet", false)

	v.SetDefault("bot.max_concurrent_trades", 2)
	v.SetDefault("bot.investment_amount", 10.0)
	v.SetDefault("bot.max_loss_percent", 1.0)
	v.SetDefault("bot.min_profit_percent", 1.5)
	v.SetDefault("bot.min_order_value", 10.0)
	v.SetDefault("bot.max_spread_percent", 0.5)

	v.SetDefault("trading.pairs", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.interval", "1m")
	v.SetDefault("trading.cycle_interval", "60s")
	v.SetDefault("trading.warmup_candles", 120)
	v.SetDefault("trading.max_candles", 1000)
	v.SetDefault("trading.stale_after", "5m")
	v.SetDefault("trading.order_book_depth", 20)
	v.SetDefault("trading.dry_run", false)
	v.SetDefault("trading.stream", true)
	v.SetDefault("trading.reconcile_interval", "5m")

	v.SetDefault("signal.min_confidence", 0.35)
	v.SetDefault("signal.confidence_multiplier", 1.0)
	v.SetDefault("signal.base_threshold", 0.25)
	v.SetDefault("signal.tuning_file", "")

	v.SetDefault("timeouts.rest", "10s")
	v.SetDefault("timeouts.order_book", "5s")
	v.SetDefault("timeouts.order", "10s")
	v.SetDefault("timeouts.sentiment", "15s")
	v.SetDefault("timeouts.store", "5s")

	v.SetDefault("sentiment.provider", "none")
	v.SetDefault("sentiment.endpoint", "https://api.anthropic.com")
	v.SetDefault("sentiment.model", "claude-3-haiku-20240307")
	v.SetDefault("sentiment.api_key", "")
	v.SetDefault("sentiment.grpc_addr", "localhost:50051")
	v.SetDefault("sentiment.max_tokens", 64)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./data/botnext.db")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.jwt_secret", "dev-secret")
	v.SetDefault("api.admin_user", "admin")
	v.SetDefault("api.admin_password_hash", "")
	v.SetDefault("api.requests_per_second", 10.0)

	v.SetDefault("paper.initial_quote", 1000.0)
	v.SetDefault("paper.quote_asset", "USDT")
	v.SetDefault("paper.fee_rate", 0.001)
	v.SetDefault("paper.slippage_bps", 2.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.language", "en")

	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.use_secrets", false)
	names := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.binance_api_key", names.BinanceAPIKey)
	v.SetDefault("gcp.secret_names.binance_api_secret", names.BinanceAPISecret)
	v.SetDefault("gcp.secret_names.sentiment_api_key", names.SentimentAPIKey)
	v.SetDefault("gcp.secret_names.jwt_secret", names.JWTSecret)
}

// overrideFromEnv honours the unprefixed variable names used by earlier deployments.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Binance.APISecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Sentiment.APIKey == "" {
		cfg.Sentiment.APIKey = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Trading.DryRun = v == "true"
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.GCP.ProjectID = v
	}
	if os.Getenv("GCP_USE_SECRETS") == "true" {
		cfg.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, cfg *Config, logger *logrus.Logger) error {
	sm, err := secrets.NewGCPSecretManager(ctx, cfg.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer sm.Close()

	// Values already present in env or file win over secrets.
	if cfg.Binance.APIKey == "" {
		cfg.Binance.APIKey = sm.GetSecretWithDefault(ctx, cfg.GCP.SecretNames.BinanceAPIKey, "")
	}
	if cfg.Binance.APISecret == "" {
		cfg.Binance.APISecret = sm.GetSecretWithDefault(ctx, cfg.GCP.SecretNames.BinanceAPISecret, "")
	}
	if cfg.Sentiment.APIKey == "" {
		cfg.Sentiment.APIKey = sm.GetSecretWithDefault(ctx, cfg.GCP.SecretNames.SentimentAPIKey, "")
	}
	if cfg.API.JWTSecret == "" || cfg.API.JWTSecret == "dev-secret" {
		cfg.API.JWTSecret = sm.GetSecretWithDefault(ctx, cfg.GCP.SecretNames.JWTSecret, cfg.API.JWTSecret)
	}

	logger.Info("loaded secrets from GCP Secret Manager")
	return nil
}

// Validate reports configuration problems that must stop the process before trading.
func (c *Config) Validate() error {
	var errs []error

	if !c.Trading.DryRun && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		errs = append(errs, errors.New("binance api key and secret are required unless trading.dry_run is set"))
	}
	if len(c.Trading.Pairs) == 0 {
		errs = append(errs, errors.New("trading.pairs must list at least one pair"))
	}
	if c.Trading.CycleInterval <= 0 {
		errs = append(errs, errors.New("trading.cycle_interval must be positive"))
	}
	if c.Trading.MaxCandles < 50 {
		errs = append(errs, fmt.Errorf("trading.max_candles %d is below the 50 candles needed for EMA50", c.Trading.MaxCandles))
	}
	if c.Trading.WarmupCandles <= 0 || c.Trading.WarmupCandles > c.Trading.MaxCandles {
		errs = append(errs, fmt.Errorf("trading.warmup_candles must be in (0, %d]", c.Trading.MaxCandles))
	}
	if c.Bot.InvestmentAmount <= 0 {
		errs = append(errs, errors.New("bot.investment_amount must be positive"))
	}
	if c.Bot.MaxConcurrentTrades <= 0 {
		errs = append(errs, errors.New("bot.max_concurrent_trades must be positive"))
	}
	if c.Bot.MaxSpreadPercent <= 0 {
		errs = append(errs, errors.New("bot.max_spread_percent must be positive"))
	}
	if c.Signal.MinConfidence < 0 || c.Signal.MinConfidence > 1 {
		errs = append(errs, errors.New("signal.min_confidence must be within [0,1]"))
	}
	if c.Signal.ConfidenceMultiplier <= 0 {
		errs = append(errs, errors.New("signal.confidence_multiplier must be positive"))
	}
	if c.Signal.BaseThreshold <= 0 || c.Signal.BaseThreshold >= 1 {
		errs = append(errs, errors.New("signal.base_threshold must be within (0,1)"))
	}
	switch c.Sentiment.Provider {
	case "", "none", "grpc":
	case "llm":
		if c.Sentiment.APIKey == "" {
			errs = append(errs, errors.New("sentiment.api_key is required for the llm provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sentiment.provider %q", c.Sentiment.Provider))
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	return errors.Join(errs...)
}

func normalizePairs(pairs []string) []string {
	// A single env value arrives as one comma separated element.
	if len(pairs) == 1 {
		pairs = splitAndTrim(pairs[0])
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
