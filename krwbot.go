// Package krwbot wires the exchange client, the chat-driven order workflow
// and the dashboard API into one process.
package krwbot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dawoonj/krwbot/api"
	"github.com/dawoonj/krwbot/chat"
	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/exchange/upbit"
	zerologger "github.com/dawoonj/krwbot/logger/zerolog"
	"github.com/dawoonj/krwbot/notification"
	"github.com/dawoonj/krwbot/order"
	"github.com/dawoonj/krwbot/portfolio"

	"github.com/rs/zerolog"
)

const heartbeatInterval = 30 * time.Second

// Bot owns the lifecycle of every component. State lives in the explicit
// RuntimeState handle; nothing is package-global.
type Bot struct {
	settings   *core.Settings
	log        core.Logger
	state      *core.RuntimeState
	broker     core.Broker
	store      *order.PendingStore
	controller *order.Controller
	portfolio  *portfolio.Service
	telegram   core.NotifierWithStart
	apiServer  *api.Server
}

// NewDefaultLogger builds the console zerolog logger used when no custom
// logger is supplied.
func NewDefaultLogger() core.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(writer).With().Timestamp().Logger()
	return zerologger.NewAdapter(&logger)
}

// NewBot assembles the bot from settings. The Telegram transport and the
// dashboard API are optional; the command pipeline always exists.
func NewBot(settings *core.Settings, options ...Option) (*Bot, error) {
	settings.Trade = settings.Trade.WithDefaults()

	bot := &Bot{
		settings: settings,
		log:      NewDefaultLogger(),
		state:    core.NewRuntimeState(),
	}
	for _, option := range options {
		option(bot)
	}

	if bot.broker == nil {
		client := upbit.NewClient(settings.Upbit, bot.log)
		bot.broker = upbit.NewBroker(client)
	}

	store, err := order.NewPendingStore(settings.Trade.PendingTTL)
	if err != nil {
		return nil, err
	}
	bot.store = store

	gate := chat.NewGate(settings.Chat)
	bot.controller = order.NewController(bot.broker, store, gate, settings.Trade, bot.state, bot.log)
	bot.portfolio = portfolio.NewService(bot.broker, bot.log)

	if settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(bot.controller, settings.Telegram, bot.log)
		if err != nil {
			return nil, fmt.Errorf("init telegram: %w", err)
		}
		bot.telegram = telegram
	}

	if settings.API.Enabled {
		bot.apiServer = api.NewServer(settings.API.Addr, bot.state, bot.portfolio, bot.log)
	}

	return bot, nil
}

// Controller exposes the chat entry point for alternative transports.
func (b *Bot) Controller() *order.Controller {
	return b.controller
}

// State exposes the runtime state handle.
func (b *Bot) State() *core.RuntimeState {
	return b.state
}

// Run starts every component and blocks until the context is canceled, then
// shuts down in reverse order. In-flight exchange calls finish or time out
// naturally rather than being aborted mid-submission.
func (b *Bot) Run(ctx context.Context) error {
	b.state.SetRunning(true)
	b.state.Heartbeat(time.Now())

	if b.telegram != nil {
		b.telegram.Start()
		b.telegram.Notify("봇이 시작되었습니다.")
	}

	apiErrs := make(chan error, 1)
	if b.apiServer != nil {
		go func() {
			if err := b.apiServer.Start(); err != nil {
				apiErrs <- err
			}
		}()
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.state.Heartbeat(time.Now())
		case err := <-apiErrs:
			b.state.SetError(err)
			b.shutdown()
			return fmt.Errorf("dashboard api: %w", err)
		case <-ctx.Done():
			b.shutdown()
			return nil
		}
	}
}

func (b *Bot) shutdown() {
	b.state.SetRunning(false)

	if b.telegram != nil {
		b.telegram.Stop()
	}
	if b.apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.apiServer.Shutdown(shutdownCtx); err != nil {
			b.log.WithError(err).Warn("api shutdown failed")
		}
	}
	if err := b.store.Close(); err != nil {
		b.log.WithError(err).Warn("pending store close failed")
	}
	b.log.Info("bot stopped")
}
