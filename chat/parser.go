// Package chat turns free-text chat input into typed trade intents and
// gates who may issue them. Parsing is transport-agnostic: no markdown, chat
// ids or formatting leak in here.
package chat

import (
	"regexp"
	"strings"

	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/market"
)

// Intent is a parsed command. Parse returns nil for anything it does not
// recognize; it never fails with an error.
type Intent interface {
	intent()
}

// TradeIntent is a buy/sell command. Market is the raw token as typed; the
// workflow canonicalizes it. LimitPrice is set iff OrdType is limit.
type TradeIntent struct {
	Side       core.SideType
	Market     string
	Amount     market.Amount
	Limit      bool
	LimitPrice float64
}

// CancelIntent targets an existing exchange order by identifier.
type CancelIntent struct {
	OrderID string
}

// ConfirmIntent confirms a pending draft. Token may be empty, in which case
// the caller resolves the user's single live draft.
type ConfirmIntent struct {
	Token string
}

// InfoKind enumerates the read-only queries.
type InfoKind string

const (
	InfoStatus         InfoKind = "status"
	InfoBalance        InfoKind = "balance"
	InfoHelp           InfoKind = "help"
	InfoOpenOrders     InfoKind = "open_orders"
	InfoFilledOrders   InfoKind = "filled_orders"
	InfoCanceledOrders InfoKind = "canceled_orders"
)

// InfoIntent is a read-only query.
type InfoIntent struct {
	Kind InfoKind
}

// ControlIntent toggles the bot's running flag.
type ControlIntent struct {
	Running bool
}

func (TradeIntent) intent()   {}
func (CancelIntent) intent()  {}
func (ConfirmIntent) intent() {}
func (InfoIntent) intent()    {}
func (ControlIntent) intent() {}

var verbs = map[string]string{
	"buy": "buy", "매수": "buy",
	"sell": "sell", "매도": "sell",
	"cancel": "cancel", "취소": "cancel",
	"confirm": "confirm", "ok": "confirm", "확인": "confirm", "컨펌": "confirm",
	"status": "status", "상태": "status",
	"balance": "balance", "잔고": "balance",
	"help": "help", "도움말": "help", "도움": "help",
	"orders": "open", "open": "open", "미체결": "open", "주문": "open",
	"filled": "filled", "체결": "filled", "체결내역": "filled",
	"canceled": "canceled", "cancelled": "canceled", "취소내역": "canceled",
	"start": "start", "시작": "start",
	"stop": "stop", "중지": "stop",
}

var limitKeywords = map[string]bool{"지정가": true, "limit": true}

var orderIDPattern = regexp.MustCompile(
	`^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9a-fA-F]{32})$`)

// Parse interprets one chat message. Malformed structure (missing market,
// missing amount, limit without a price) yields nil so the caller can reply
// with a usage hint.
func Parse(text string) Intent {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	head := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Telegram suffixes commands with @botname.
	head, _, _ = strings.Cut(head, "@")

	verb, ok := verbs[head]
	if !ok {
		return nil
	}
	args := fields[1:]

	switch verb {
	case "buy":
		return parseTrade(core.SideTypeBuy, args)
	case "sell":
		return parseTrade(core.SideTypeSell, args)
	case "cancel":
		if len(args) != 1 || !orderIDPattern.MatchString(args[0]) {
			return nil
		}
		return CancelIntent{OrderID: strings.ToLower(args[0])}
	case "confirm":
		intent := ConfirmIntent{}
		if len(args) > 0 {
			intent.Token = strings.ToLower(args[0])
		}
		return intent
	case "status":
		return InfoIntent{Kind: InfoStatus}
	case "balance":
		return InfoIntent{Kind: InfoBalance}
	case "help":
		return InfoIntent{Kind: InfoHelp}
	case "open":
		return InfoIntent{Kind: InfoOpenOrders}
	case "filled":
		return InfoIntent{Kind: InfoFilledOrders}
	case "canceled":
		return InfoIntent{Kind: InfoCanceledOrders}
	case "start":
		return ControlIntent{Running: true}
	case "stop":
		return ControlIntent{Running: false}
	}
	return nil
}

// parseTrade handles `<market> <amount>[%] [지정가|limit <price>]` (the
// keyword may precede the amount) and the `<market> <amount>@<price>`
// shorthand.
func parseTrade(side core.SideType, args []string) Intent {
	if len(args) < 2 {
		return nil
	}

	marketTok := args[0]
	if !looksLikeMarket(marketTok) {
		return nil
	}

	intent := TradeIntent{Side: side, Market: marketTok}
	rest := args[1:]

	// A limit keyword anywhere makes the whole command a limit order; it must
	// be followed by a price and accompanied by an amount, or the command is
	// malformed.
	limitIdx := -1
	for i, tok := range rest {
		if limitKeywords[strings.ToLower(tok)] {
			limitIdx = i
			break
		}
	}

	if limitIdx >= 0 {
		priceIdx := limitIdx + 1
		if priceIdx >= len(rest) {
			return nil // limit without a price
		}
		price, err := market.ParsePrice(rest[priceIdx])
		if err != nil {
			return nil
		}

		amountIdx := -1
		for i, tok := range rest {
			if i == limitIdx || i == priceIdx {
				continue
			}
			if containsDigit(tok) {
				amountIdx = i
				break
			}
		}
		if amountIdx < 0 {
			return nil
		}
		amount, err := market.ParseAmount(rest[amountIdx])
		if err != nil {
			return nil
		}

		intent.Amount = amount
		intent.Limit = true
		intent.LimitPrice = price
		return intent
	}

	amountIdx := -1
	for i, tok := range rest {
		if containsDigit(tok) {
			amountIdx = i
			break
		}
	}
	if amountIdx < 0 {
		return nil
	}

	amountTok := rest[amountIdx]
	if amtPart, pricePart, found := strings.Cut(amountTok, "@"); found {
		amount, err := market.ParseAmount(amtPart)
		if err != nil {
			return nil
		}
		price, err := market.ParsePrice(pricePart)
		if err != nil {
			return nil
		}
		intent.Amount = amount
		intent.Limit = true
		intent.LimitPrice = price
		return intent
	}

	amount, err := market.ParseAmount(amountTok)
	if err != nil {
		return nil
	}
	intent.Amount = amount
	return intent
}

// looksLikeMarket accepts any token with alphabetic content; bare numbers
// are amounts, not markets. Symbols like 1INCH still qualify.
func looksLikeMarket(tok string) bool {
	for _, r := range tok {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func containsDigit(tok string) bool {
	for _, r := range tok {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
