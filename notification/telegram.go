// Package notification provides the chat transports that feed commands into
// the order workflow and broadcast bot events back out.
package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dawoonj/krwbot/chat"
	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/order"

	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// Telegram delivers inbound messages to the order controller and posts the
// replies back. Authorization lives in the controller's gate, not here: the
// transport only drops structurally broken updates.
type Telegram struct {
	settings   core.TelegramSettings
	controller *order.Controller
	client     *tb.Bot
	log        core.Logger
}

func NewTelegram(controller *order.Controller, settings core.TelegramSettings, log core.Logger) (core.NotifierWithStart, error) {
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	filtered := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil || u.Message.Chat == nil {
			return false
		}
		return true
	})

	client, err := tb.NewBot(tb.Settings{
		Token:  settings.Token,
		Poller: filtered,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	bot := &Telegram{
		settings:   settings,
		controller: controller,
		client:     client,
		log:        log,
	}

	if err := client.SetCommands([]tb.Command{
		{Text: "/help", Description: "명령 도움말"},
		{Text: "/status", Description: "봇 상태"},
		{Text: "/balance", Description: "잔고 조회"},
		{Text: "/buy", Description: "매수 주문 초안"},
		{Text: "/sell", Description: "매도 주문 초안"},
		{Text: "/cancel", Description: "주문 취소 초안"},
		{Text: "/confirm", Description: "대기 중인 초안 확정"},
		{Text: "/orders", Description: "미체결 주문"},
		{Text: "/start", Description: "봇 시작"},
		{Text: "/stop", Description: "봇 중지"},
	}); err != nil {
		return nil, fmt.Errorf("set telegram commands: %w", err)
	}

	client.Handle(tb.OnText, bot.onMessage)

	return bot, nil
}

// onMessage runs the full command pipeline for one update. Telebot delivers
// updates serially, which keeps store access single-writer.
func (t *Telegram) onMessage(m *tb.Message) {
	kind := chat.ChannelKindChannel
	if m.Private() {
		kind = chat.ChannelKindDirect
	}

	replies := t.controller.HandleCommand(
		context.Background(),
		m.Text,
		strconv.FormatInt(int64(m.Sender.ID), 10),
		strconv.FormatInt(m.Chat.ID, 10),
		kind,
	)
	for _, reply := range replies {
		if _, err := t.client.Send(m.Chat, reply); err != nil {
			t.log.WithError(err).Error("failed to send reply")
		}
	}
}

// Start begins long polling. The poller loop blocks inside telebot, so it
// runs on its own goroutine.
func (t *Telegram) Start() {
	go t.client.Start()
	t.log.Info("telegram transport started")
}

// Stop halts polling; an in-flight handler runs to completion.
func (t *Telegram) Stop() {
	t.client.Stop()
}

// Notify sends a message to every configured admin user.
func (t *Telegram) Notify(text string) {
	for _, user := range t.settings.Users {
		if _, err := t.client.Send(&tb.User{ID: user}, text); err != nil {
			t.log.WithError(err).Error("failed to send notification")
		}
	}
}

// OnError broadcasts an error to the admin users.
func (t *Telegram) OnError(err error) {
	t.Notify("오류 발생: " + err.Error())
}
