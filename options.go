package krwbot

import "github.com/dawoonj/krwbot/core"

// Option customizes a Bot during construction.
type Option func(*Bot)

// WithLogger replaces the default console logger.
func WithLogger(log core.Logger) Option {
	return func(b *Bot) {
		b.log = log
	}
}

// WithBroker injects a broker, e.g. a fake exchange in tests.
func WithBroker(broker core.Broker) Option {
	return func(b *Bot) {
		b.broker = broker
	}
}

// WithState injects a shared runtime-state handle.
func WithState(state *core.RuntimeState) Option {
	return func(b *Bot) {
		b.state = state
	}
}
