package chat

import (
	"github.com/StudioSol/set"
	"github.com/dawoonj/krwbot/core"
)

// ChannelKind distinguishes direct messages from shared channels.
type ChannelKind string

const (
	ChannelKindDirect  ChannelKind = "im"
	ChannelKindChannel ChannelKind = "channel"
)

// Gate restricts command execution to allow-listed users and channels.
type Gate struct {
	users    *set.LinkedHashSetString
	channels *set.LinkedHashSetString
}

func NewGate(settings core.ChatSettings) *Gate {
	return &Gate{
		users:    set.NewLinkedHashSetString(settings.AllowedUsers...),
		channels: set.NewLinkedHashSetString(settings.TradeChannels...),
	}
}

// Authorize applies the rules in order: a configured user allow-list must
// contain the user; direct messages then always pass; any other channel must
// be an allow-listed trading channel.
func (g *Gate) Authorize(userID, channelID string, kind ChannelKind) bool {
	if g.users.Length() > 0 && !g.users.InArray(userID) {
		return false
	}
	if kind == ChannelKindDirect {
		return true
	}
	return g.channels.InArray(channelID)
}
