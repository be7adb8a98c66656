package domain

import "context"

// RuleStore is the read side of the rules and settings store.
type RuleStore interface {
	// RulesForSource returns the rules whose source is channelID, in insertion order.
	RulesForSource(ctx context.Context, channelID string) ([]ForwardingRule, error)
	GuildSettings(ctx context.Context, guildID string) (GuildSettings, error)
}

// CapacitySource resolves the capacity profile of a guild.
type CapacitySource interface {
	CapacityProfile(ctx context.Context, guildID string) (GuildCapacityProfile, error)
}

// Reachability re-verifies that a destination channel can currently receive messages.
type Reachability interface {
	Reachable(ctx context.Context, channelID string) bool
}

// Sender delivers payloads to destination channels.
type Sender interface {
	Send(ctx context.Context, payload OutboundPayload) error
	// SupportsIdentityOverride reports whether payload.Identity is honoured.
	SupportsIdentityOverride() bool
	// MaxRequestBytes is the largest request the transport accepts.
	MaxRequestBytes() int64
}

// QuotaCounter enforces per-guild daily forward limits.
type QuotaCounter interface {
	// Reserve consumes one unit of guildID's allowance for today.
	// It returns false when limit units were already consumed.
	Reserve(ctx context.Context, guildID string, limit int) (bool, error)
	// Release returns one unit reserved today, for a forward that failed.
	Release(ctx context.Context, guildID string) error
}

// MessageBus carries inbound messages from the gateway to the engine.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
