package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dawoonj/krwbot"
	"github.com/dawoonj/krwbot/core"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// config maps environment variables onto core.Settings.
type config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Upbit struct {
		AccessKey string        `envconfig:"UPBIT_ACCESS_KEY"`
		SecretKey string        `envconfig:"UPBIT_SECRET_KEY"`
		BaseURL   string        `envconfig:"UPBIT_BASE_URL" default:"https://api.upbit.com"`
		Timeout   time.Duration `envconfig:"UPBIT_TIMEOUT" default:"10s"`
	}

	Telegram struct {
		Token string  `envconfig:"TELEGRAM_BOT_TOKEN"`
		Users []int64 `envconfig:"TELEGRAM_ADMIN_IDS"`
	}

	Chat struct {
		AllowedUsers  []string `envconfig:"CHAT_ALLOWED_USERS"`
		TradeChannels []string `envconfig:"CHAT_TRADE_CHANNELS"`
	}

	Trade struct {
		PendingTTL  time.Duration      `envconfig:"PENDING_TTL" default:"5m"`
		MaxOrderPct float64            `envconfig:"MAX_ORDER_PCT" default:"20"`
		MinNotional map[string]float64 `envconfig:"MIN_NOTIONAL" default:"KRW:5000,BTC:0.0005,USDT:0.5"`
	}

	API struct {
		Enabled bool   `envconfig:"API_ENABLED" default:"false"`
		Addr    string `envconfig:"API_ADDR" default:":8080"`
	}
}

func loadSettings() (*core.Settings, string, error) {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, "", fmt.Errorf("process environment: %w", err)
	}

	settings := &core.Settings{
		Upbit: core.UpbitSettings{
			AccessKey: cfg.Upbit.AccessKey,
			SecretKey: cfg.Upbit.SecretKey,
			BaseURL:   cfg.Upbit.BaseURL,
			Timeout:   cfg.Upbit.Timeout,
		},
		Telegram: core.TelegramSettings{
			Enabled: cfg.Telegram.Token != "",
			Token:   cfg.Telegram.Token,
			Users:   cfg.Telegram.Users,
		},
		Chat: core.ChatSettings{
			AllowedUsers:  cfg.Chat.AllowedUsers,
			TradeChannels: cfg.Chat.TradeChannels,
		},
		Trade: core.TradeSettings{
			PendingTTL:  cfg.Trade.PendingTTL,
			MaxOrderPct: cfg.Trade.MaxOrderPct,
			MinNotional: cfg.Trade.MinNotional,
		},
		API: core.APISettings{
			Enabled: cfg.API.Enabled,
			Addr:    cfg.API.Addr,
		},
	}
	return settings, cfg.LogLevel, nil
}

func levelFromName(name string) core.Level {
	switch name {
	case "trace":
		return core.TraceLevel
	case "debug":
		return core.DebugLevel
	case "warn":
		return core.WarnLevel
	case "error":
		return core.ErrorLevel
	default:
		return core.InfoLevel
	}
}

func run(cmd *cobra.Command, _ []string) error {
	settings, logLevel, err := loadSettings()
	if err != nil {
		return err
	}

	log := krwbot.NewDefaultLogger()
	log.SetLevel(levelFromName(logLevel))

	bot, err := krwbot.NewBot(settings, krwbot.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("krwbot starting")
	return bot.Run(ctx)
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "krwbot",
		Short:   "Chat-commanded Upbit trading bot",
		Version: "1.0.0",
		RunE:    run,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
