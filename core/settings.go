package core

import "time"

// UpbitSettings carries the immutable credential context for the exchange
// client. Supplied once at startup.
type UpbitSettings struct {
	AccessKey string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// TelegramSettings configures the chat transport.
type TelegramSettings struct {
	Enabled bool
	Token   string
	// Users receive broadcast notifications (order fills, errors).
	Users []int64
}

// ChatSettings are the authorization allow-lists. An empty AllowedUsers list
// means any user passes the user check; TradeChannels gates non-DM channels.
type ChatSettings struct {
	AllowedUsers  []string
	TradeChannels []string
}

// TradeSettings are the risk policy knobs for the prepare/confirm workflow.
type TradeSettings struct {
	// PendingTTL bounds how long an unconfirmed draft stays confirmable.
	PendingTTL time.Duration
	// MaxOrderPct caps a single buy at this fraction of the available
	// quote balance, in percent.
	MaxOrderPct float64
	// MinNotional is the per-quote-currency order value floor. Exchange-side
	// minimums change over time, so this is configuration, not a constant.
	MinNotional map[string]float64
}

// APISettings configures the read-only dashboard HTTP server.
type APISettings struct {
	Enabled bool
	Addr    string
}

// Settings is the process-wide configuration root.
type Settings struct {
	Upbit    UpbitSettings
	Telegram TelegramSettings
	Chat     ChatSettings
	Trade    TradeSettings
	API      APISettings
}

// DefaultTradeSettings returns the policy used when nothing is configured.
func DefaultTradeSettings() TradeSettings {
	return TradeSettings{
		PendingTTL:  5 * time.Minute,
		MaxOrderPct: 20,
		MinNotional: map[string]float64{
			"KRW":  5000,
			"BTC":  0.0005,
			"USDT": 0.5,
		},
	}
}

// WithDefaults fills only the unset fields, keeping whatever the caller
// configured.
func (t TradeSettings) WithDefaults() TradeSettings {
	defaults := DefaultTradeSettings()
	if t.PendingTTL <= 0 {
		t.PendingTTL = defaults.PendingTTL
	}
	if t.MaxOrderPct <= 0 {
		t.MaxOrderPct = defaults.MaxOrderPct
	}
	if t.MinNotional == nil {
		t.MinNotional = defaults.MinNotional
	}
	return t
}
