package domain

// Identity overrides the display name and avatar of a delivered message.
type Identity struct {
	Username  string
	AvatarURL string
}

// OutboundPayload is the message delivered to one destination.
// It is built fresh per destination and never shared.
type OutboundPayload struct {
	RuleID               string
	DestinationChannelID string
	DestinationGuildID   string
	Text                 string
	Embeds               []Embed
	Attachments          []Attachment
	Attribution          Attribution
	Identity             *Identity
	// FallbackHeader names the author and source channel. Senders prepend it
	// when Identity is set but cannot be applied.
	FallbackHeader string
}

// WithoutAttachments returns a copy of p carrying text and embeds only.
func (p OutboundPayload) WithoutAttachments() OutboundPayload {
	p.Attachments = nil
	return p
}
