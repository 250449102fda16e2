package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dawoonj/krwbot/chat"
	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/exchange/upbit"
	"github.com/dawoonj/krwbot/market"

	"github.com/shopspring/decimal"
)

const historyPageLimit = 20

// Controller validates trade drafts against live balances and exchange
// constraints and, on confirmation, submits them through the broker. It is
// the single chat entry point: transports call HandleCommand and deliver the
// returned messages to the originating channel.
type Controller struct {
	broker core.Broker
	store  *PendingStore
	gate   *chat.Gate
	policy core.TradeSettings
	state  *core.RuntimeState
	log    core.Logger
	now    func() time.Time
}

func NewController(
	broker core.Broker,
	store *PendingStore,
	gate *chat.Gate,
	policy core.TradeSettings,
	state *core.RuntimeState,
	log core.Logger,
) *Controller {
	policy = policy.WithDefaults()
	return &Controller{
		broker: broker,
		store:  store,
		gate:   gate,
		policy: policy,
		state:  state,
		log:    log,
		now:    time.Now,
	}
}

// HandleCommand processes one inbound chat event and returns the replies for
// the originating channel. Nothing here is fatal: every failure ends this
// command only.
func (c *Controller) HandleCommand(ctx context.Context, text, userID, channelID string, kind chat.ChannelKind) []string {
	if !c.gate.Authorize(userID, channelID, kind) {
		if kind == chat.ChannelKindDirect {
			return []string{"권한이 없습니다."}
		}
		// Silent outside DMs: no hint about channel configuration.
		return nil
	}

	intent := chat.Parse(text)
	if intent == nil {
		return []string{"지원하지 않는 명령입니다. 'help'를 입력하세요."}
	}

	switch v := intent.(type) {
	case chat.TradeIntent:
		return c.prepareTrade(ctx, v, userID, channelID, kind)
	case chat.CancelIntent:
		return c.prepareCancel(ctx, v, userID, channelID, kind)
	case chat.ConfirmIntent:
		return c.confirm(ctx, v, userID, channelID)
	case chat.InfoIntent:
		return c.info(ctx, v.Kind)
	case chat.ControlIntent:
		return c.control(v)
	}
	return nil
}

// control flips the running flag reported by status and the dashboard.
func (c *Controller) control(intent chat.ControlIntent) []string {
	c.state.SetRunning(intent.Running)
	if intent.Running {
		c.log.Info("bot resumed by chat command")
		return []string{"봇을 시작했습니다."}
	}
	c.log.Info("bot paused by chat command")
	return []string{"봇을 중지했습니다."}
}

// prepareTrade runs prepare-validation for a buy/sell and registers a draft
// on success. No state persists on rejection.
func (c *Controller) prepareTrade(ctx context.Context, intent chat.TradeIntent, userID, channelID string, kind chat.ChannelKind) []string {
	symbol, err := market.Normalize(intent.Market)
	if err != nil {
		return []string{fmt.Sprintf("마켓 심볼을 해석할 수 없습니다: %s", intent.Market)}
	}
	quote, base := market.Split(symbol)

	if intent.Limit {
		if err := market.CheckTick(quote, intent.LimitPrice); err != nil {
			tick := market.TickSize(intent.LimitPrice)
			return []string{fmt.Sprintf("지정가 %s원은 호가 단위(%s)에 맞지 않습니다.",
				fmtNum(intent.LimitPrice), fmtNum(tick))}
		}
	}

	balances, err := c.broker.Accounts(ctx)
	if err != nil {
		return []string{c.exchangeReply(err)}
	}
	account := core.Account{Balances: balances}

	draft := Draft{
		Token:       NewToken(),
		UserID:      userID,
		ChannelID:   channelID,
		ChannelKind: string(kind),
		Kind:        DraftKindOrder,
		Market:      symbol,
		Side:        intent.Side,
		CreatedAt:   c.now(),
	}

	notional := market.NotionalPolicy(c.policy.MinNotional)

	switch intent.Side {
	case core.SideTypeBuy:
		available := account.Balance(quote).Available()
		maxAmount := available * c.policy.MaxOrderPct / 100

		var amount float64
		if intent.Amount.Percent {
			if intent.Amount.Value > c.policy.MaxOrderPct {
				return []string{fmt.Sprintf("1회 주문은 가용 잔고의 %s%%까지만 가능합니다.",
					fmtNum(c.policy.MaxOrderPct))}
			}
			amount = available * intent.Amount.Value / 100
		} else {
			amount = intent.Amount.Value
			if amount > available {
				return []string{fmt.Sprintf("가용 %s 잔고(%s)가 부족합니다.", quote, fmtNum(available))}
			}
			if amount > maxAmount {
				return []string{fmt.Sprintf("1회 주문은 가용 잔고의 %s%%(%s %s)까지만 가능합니다.",
					fmtNum(c.policy.MaxOrderPct), fmtNum(maxAmount), quote)}
			}
		}

		if err := notional.CheckNotional(quote, amount); err != nil {
			return []string{fmt.Sprintf("최소 주문 금액(%s %s) 미만입니다.",
				fmtNum(c.policy.MinNotional[quote]), quote)}
		}

		if intent.Limit {
			draft.OrdType = core.OrdTypeLimit
			draft.Price = intent.LimitPrice
			draft.Volume = amount / intent.LimitPrice
		} else {
			draft.OrdType = core.OrdTypePrice
			draft.Amount = amount
		}

	case core.SideTypeSell:
		available := account.Balance(base).Available()

		var volume float64
		if intent.Amount.Percent {
			volume = available * intent.Amount.Value / 100
		} else {
			volume = intent.Amount.Value
		}
		if volume <= 0 || volume > available {
			return []string{fmt.Sprintf("가용 %s 수량(%s)이 부족합니다.", base, fmtNum(available))}
		}

		value := volume
		if intent.Limit {
			value = volume * intent.LimitPrice
		} else {
			price, err := c.lastPrice(ctx, symbol)
			if err != nil {
				return []string{c.exchangeReply(err)}
			}
			value = volume * price
		}
		if err := notional.CheckNotional(quote, value); err != nil {
			return []string{fmt.Sprintf("최소 주문 금액(%s %s) 미만입니다.",
				fmtNum(c.policy.MinNotional[quote]), quote)}
		}

		if intent.Limit {
			draft.OrdType = core.OrdTypeLimit
			draft.Price = intent.LimitPrice
		} else {
			draft.OrdType = core.OrdTypeMarket
		}
		draft.Volume = volume
	}

	if err := c.store.Register(draft); err != nil {
		c.log.WithError(err).Error("failed to register draft")
		return []string{"주문 초안을 저장하지 못했습니다."}
	}

	return []string{c.draftSummary(draft)}
}

// prepareCancel validates the target order exists and registers a cancel
// draft for it.
func (c *Controller) prepareCancel(ctx context.Context, intent chat.CancelIntent, userID, channelID string, kind chat.ChannelKind) []string {
	target, err := c.broker.Order(ctx, intent.OrderID)
	if err != nil {
		return []string{c.exchangeReply(err)}
	}

	draft := Draft{
		Token:         NewToken(),
		UserID:        userID,
		ChannelID:     channelID,
		ChannelKind:   string(kind),
		Kind:          DraftKindCancel,
		Market:        target.Market,
		TargetOrderID: target.UUID,
		CreatedAt:     c.now(),
	}
	if err := c.store.Register(draft); err != nil {
		c.log.WithError(err).Error("failed to register cancel draft")
		return []string{"취소 초안을 저장하지 못했습니다."}
	}

	return []string{fmt.Sprintf("[취소 확인 대기]\n주문: %s (%s %s)\n'confirm %s' 입력 시 취소합니다. (유효 %s)",
		target.UUID, target.Market, target.Side, draft.Token, c.ttlText())}
}

// confirm submits the referenced draft. Confirmation sweeps expired drafts
// first, so nothing past its TTL can ever be submitted.
func (c *Controller) confirm(ctx context.Context, intent chat.ConfirmIntent, userID, channelID string) []string {
	if err := c.store.CleanupExpired(c.now()); err != nil {
		c.log.WithError(err).Error("draft cleanup failed")
	}

	token := intent.Token
	if token == "" {
		resolved, ok := c.store.TokenFor(userID)
		if !ok {
			return []string{"확인 대기 중인 주문이 없습니다."}
		}
		token = resolved
	}

	draft, ok := c.store.Get(token)
	if !ok {
		return []string{"알 수 없거나 만료된 토큰입니다."}
	}
	if draft.UserID != userID || draft.ChannelID != channelID {
		// The draft stays live for its owner until TTL.
		return []string{"이 주문을 확인할 권한이 없습니다."}
	}

	switch draft.Kind {
	case DraftKindCancel:
		canceled, err := c.broker.CancelOrder(ctx, draft.TargetOrderID)
		if err != nil {
			// Keep the draft so the user may retry after a transient failure.
			return []string{c.exchangeReply(err) + "\n초안은 유지됩니다. 다시 confirm 할 수 있습니다."}
		}
		if err := c.store.Remove(token); err != nil {
			c.log.WithError(err).Error("failed to remove draft")
		}
		return []string{fmt.Sprintf("취소 요청 완료: %s", canceled.UUID)}

	default:
		submitted, err := c.broker.CreateOrder(ctx, buildOrderRequest(draft))
		if err != nil {
			c.log.WithError(err).WithField("market", draft.Market).Error("order submission failed")
			return []string{c.exchangeReply(err) + "\n초안은 유지됩니다. 다시 confirm 할 수 있습니다."}
		}
		if err := c.store.Remove(token); err != nil {
			c.log.WithError(err).Error("failed to remove draft")
		}
		c.log.WithFields(map[string]any{
			"market": draft.Market,
			"side":   draft.Side,
			"uuid":   submitted.UUID,
		}).Info("order submitted")
		return []string{fmt.Sprintf("주문 접수 완료: %s\n%s %s %s", submitted.UUID,
			draft.Market, sideText(draft.Side), ordTypeText(draft.OrdType))}
	}
}

// buildOrderRequest maps a resolved draft onto the exchange wire format:
// market buys carry ord_type=price with the quote amount, market sells carry
// ord_type=market with the volume, limit orders carry both volume and price.
func buildOrderRequest(draft Draft) core.OrderRequest {
	req := core.OrderRequest{
		Market:  draft.Market,
		Side:    draft.Side,
		OrdType: draft.OrdType,
	}
	switch draft.OrdType {
	case core.OrdTypePrice:
		req.Price = fmtNum(draft.Amount)
	case core.OrdTypeMarket:
		req.Volume = fmtNum(draft.Volume)
	case core.OrdTypeLimit:
		req.Volume = fmtNum(draft.Volume)
		req.Price = fmtNum(draft.Price)
	}
	return req
}

func (c *Controller) info(ctx context.Context, kind chat.InfoKind) []string {
	switch kind {
	case chat.InfoStatus:
		return []string{c.statusText()}
	case chat.InfoBalance:
		return c.balanceText(ctx)
	case chat.InfoHelp:
		return []string{helpText}
	case chat.InfoOpenOrders:
		return c.orderHistory(ctx, true, nil)
	case chat.InfoFilledOrders:
		return c.orderHistory(ctx, false, []string{"done"})
	case chat.InfoCanceledOrders:
		return c.orderHistory(ctx, false, []string{"cancel"})
	}
	return nil
}

const helpText = "사용 가능한 명령:\n" +
	"- 매수/buy <마켓> <금액|percent%> [지정가 <가격>]\n" +
	"- 매도/sell <마켓> <수량|percent%> [지정가 <가격>]\n" +
	"- 취소/cancel <주문 UUID>\n" +
	"- 확인/confirm [토큰]\n" +
	"- 잔고/balance, 상태/status, 미체결/orders, 체결/filled, 취소내역/canceled\n" +
	"- 시작/start, 중지/stop"

func (c *Controller) statusText() string {
	status := c.state.Status()
	running := "중지"
	if status.Running {
		running = "실행 중"
	}
	heartbeat := "-"
	if !status.LastHeartbeat.IsZero() {
		heartbeat = status.LastHeartbeat.Format(time.RFC3339)
	}
	lastErr := status.LastError
	if lastErr == "" {
		lastErr = "-"
	}
	return fmt.Sprintf("봇 상태: %s\n마지막 하트비트: %s\n최근 오류: %s", running, heartbeat, lastErr)
}

// balanceText values non-KRW holdings at the last traded price, as the
// dashboard does. Ticker failures degrade to an unpriced listing.
func (c *Controller) balanceText(ctx context.Context) []string {
	balances, err := c.broker.Accounts(ctx)
	if err != nil {
		return []string{c.exchangeReply(err)}
	}

	var markets []string
	for _, b := range balances {
		if b.Currency != market.DefaultQuote && b.Total() > 0 {
			markets = append(markets, market.DefaultQuote+"-"+b.Currency)
		}
	}

	prices := make(map[string]float64)
	if len(markets) > 0 {
		tickers, err := c.broker.Ticker(ctx, markets)
		if err != nil {
			c.log.WithError(err).Warn("ticker fetch failed")
		}
		for _, t := range tickers {
			prices[t.Market] = t.TradePrice
		}
	}

	lines := []string{"[잔고]"}
	total := 0.0
	for _, b := range balances {
		if b.Total() <= 0 {
			continue
		}
		line := fmt.Sprintf("%s: %s", b.Currency, fmtNum(b.Total()))
		if b.Locked > 0 {
			line += fmt.Sprintf(" (locked %s)", fmtNum(b.Locked))
		}
		if b.Currency == market.DefaultQuote {
			total += b.Total()
		} else if price := prices[market.DefaultQuote+"-"+b.Currency]; price > 0 {
			value := price * b.Total()
			total += value
			line += fmt.Sprintf(" (~%s KRW)", fmtNum(value))
		}
		lines = append(lines, line)
	}
	if len(lines) == 1 {
		return []string{"표시할 잔고가 없습니다."}
	}
	lines = append(lines, fmt.Sprintf("총합(추정): %s KRW", fmtNum(total)))
	return []string{strings.Join(lines, "\n")}
}

func (c *Controller) orderHistory(ctx context.Context, open bool, states []string) []string {
	query := core.OrderQuery{States: states, Limit: historyPageLimit, OrderBy: "desc"}

	var (
		orders []core.Order
		err    error
	)
	if open {
		orders, err = c.broker.OpenOrders(ctx, query)
	} else {
		orders, err = c.broker.ClosedOrders(ctx, query)
	}
	if err != nil {
		return []string{c.exchangeReply(err)}
	}
	if len(orders) == 0 {
		return []string{"해당하는 주문이 없습니다."}
	}

	lines := make([]string, 0, len(orders)+1)
	lines = append(lines, "[주문 내역]")
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("%s %s %s %s vol=%s price=%s (%s)",
			o.Market, o.Side, o.OrdType, o.State, o.Volume, o.Price, o.UUID))
	}
	return []string{strings.Join(lines, "\n")}
}

func (c *Controller) draftSummary(draft Draft) string {
	quote, _ := market.Split(draft.Market)
	var detail string
	switch draft.OrdType {
	case core.OrdTypePrice:
		detail = fmt.Sprintf("금액: %s %s", fmtNum(draft.Amount), quote)
	case core.OrdTypeMarket:
		detail = fmt.Sprintf("수량: %s", fmtNum(draft.Volume))
	case core.OrdTypeLimit:
		detail = fmt.Sprintf("수량: %s / 지정가: %s %s", fmtNum(draft.Volume), fmtNum(draft.Price), quote)
	}
	return fmt.Sprintf("[주문 확인 대기]\n%s %s %s\n%s\n'confirm %s' 입력 시 주문합니다. (유효 %s)",
		draft.Market, sideText(draft.Side), ordTypeText(draft.OrdType), detail, draft.Token, c.ttlText())
}

// lastPrice fetches the current traded price for one market.
func (c *Controller) lastPrice(ctx context.Context, symbol string) (float64, error) {
	tickers, err := c.broker.Ticker(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	if len(tickers) == 0 || tickers[0].TradePrice <= 0 {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}
	return tickers[0].TradePrice, nil
}

// exchangeReply translates exchange-boundary failures into chat-safe text.
// Raw secrets or stack state never reach the channel.
func (c *Controller) exchangeReply(err error) string {
	if errors.Is(err, core.ErrCredentialsMissing) {
		return "Upbit 키가 설정되지 않았습니다. UPBIT_ACCESS_KEY/UPBIT_SECRET_KEY를 확인하세요."
	}
	var apiErr *upbit.APIError
	if errors.As(err, &apiErr) {
		name := apiErr.Name
		if name == "" {
			name = fmt.Sprintf("HTTP %d", apiErr.StatusCode)
		}
		return fmt.Sprintf("Upbit 오류: %s %s", name, apiErr.Message)
	}
	c.log.WithError(err).Error("exchange call failed")
	return "거래소 호출에 실패했습니다. 잠시 후 다시 시도하세요."
}

func (c *Controller) ttlText() string {
	return fmt.Sprintf("%d분", int(c.policy.PendingTTL.Minutes()))
}

func sideText(side core.SideType) string {
	if side == core.SideTypeBuy {
		return "매수"
	}
	return "매도"
}

func ordTypeText(t core.OrdType) string {
	if t == core.OrdTypeLimit {
		return "지정가"
	}
	return "시장가"
}

// fmtNum renders a float without exponent notation, trimming trailing zeros.
func fmtNum(value float64) string {
	return decimal.NewFromFloat(value).String()
}
