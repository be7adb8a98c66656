package forward

import (
	"strings"
	"time"
	"unicode/utf8"

	"relaybot/internal/domain"
)

// Embed colours used when a rule does not set one.
const (
	colorImages  = 0x57F287
	colorFiles   = 0x3498DB
	colorEmbeds  = 0x9B59B6
	colorLong    = 0xE67E22
	colorDefault = 0x5865F2
)

// Composer turns a matched rule and an inbound message into a destination payload.
type Composer struct {
	identityOverride bool
}

// NewComposer creates a Composer. identityOverride reports whether the transport
// can deliver under the original author's name and avatar.
func NewComposer(identityOverride bool) *Composer {
	return &Composer{identityOverride: identityOverride}
}

// Compose builds a fresh payload for rule's destination. Attachments are the
// full candidate list in source order; budgeting happens later per guild.
func (c *Composer) Compose(rule domain.ForwardingRule, msg domain.InboundMessage) domain.OutboundPayload {
	rule = rule.WithDefaults()
	p := domain.OutboundPayload{
		RuleID:               rule.ID,
		DestinationChannelID: rule.DestinationChannelID,
		DestinationGuildID:   rule.DestinationGuildID,
		Attribution:          rule.Attribution,
	}

	if rule.Attribution == domain.AttributionPreserve && c.identityOverride {
		p.Identity = &domain.Identity{
			Username:  msg.Author.Name(),
			AvatarURL: msg.Author.AvatarURL,
		}
	}
	p.FallbackHeader = c.header(rule, msg, false)
	header := c.header(rule, msg, p.Identity != nil)

	embeds := passthroughEmbeds(rule.Format, msg.Embeds)
	switch rule.Format.Style {
	case domain.StyleText:
		p.Text = textStyle(rule, msg, header)
	case domain.StyleEmbed:
		var generated domain.Embed
		p.Text, generated = embedStyle(rule, msg, header, p.Identity != nil)
		embeds = append([]domain.Embed{generated}, embeds...)
	default:
		p.Text = nativeStyle(rule, msg, header)
	}
	p.Text = clampRunes(p.Text, maxMessageRunes)

	if len(embeds) > maxEmbedsPerMessage {
		embeds = embeds[:maxEmbedsPerMessage]
	}
	p.Embeds = embeds

	if rule.Format.ForwardAttachments() && len(msg.Attachments) > 0 {
		p.Attachments = append([]domain.Attachment(nil), msg.Attachments...)
	}
	return p
}

// header returns the attribution line. It is empty when the identity override
// already shows who wrote the message.
func (c *Composer) header(rule domain.ForwardingRule, msg domain.InboundMessage, overridden bool) string {
	if overridden {
		return ""
	}
	var b strings.Builder
	if rule.Attribution == domain.AttributionPreserve {
		b.WriteString("**")
		b.WriteString(msg.Author.Name())
		b.WriteString("** in ")
	} else {
		b.WriteString("-# Forwarded from ")
	}
	b.WriteString(channelMention(msg.ChannelID))
	if crossGuild(rule, msg) && msg.GuildName != "" {
		b.WriteString(" | ")
		b.WriteString(msg.GuildName)
	}
	return b.String()
}

func crossGuild(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
	return rule.DestinationGuildID != "" && rule.DestinationGuildID != msg.GuildID
}

func nativeStyle(rule domain.ForwardingRule, msg domain.InboundMessage, header string) string {
	var parts []string
	if rule.Format.Prefix != "" {
		parts = append(parts, renderTemplate(rule.Format.Prefix, msg))
	}
	if header != "" {
		parts = append(parts, header)
	}
	if msg.Text != "" {
		content, cut := truncateContent(msg.Text, rule.Format.MaxContentLength)
		parts = append(parts, quoteLines(content)...)
		if cut {
			parts = append(parts, "> "+truncationNote(msg.Text))
		}
	}
	if msg.JumpURL != "" {
		parts = append(parts, "> -# ([original post]("+msg.JumpURL+"))")
	}
	if rule.Format.Suffix != "" {
		parts = append(parts, renderTemplate(rule.Format.Suffix, msg))
	}
	return strings.Join(parts, "\n")
}

func textStyle(rule domain.ForwardingRule, msg domain.InboundMessage, header string) string {
	var parts []string
	if rule.Format.Prefix != "" {
		parts = append(parts, renderTemplate(rule.Format.Prefix, msg))
	}
	if header != "" {
		parts = append(parts, header)
	}
	if rule.Format.IncludeSource && msg.JumpURL != "" {
		parts = append(parts, "*[Jump to message]("+msg.JumpURL+")*")
	}
	if msg.Text != "" {
		content, cut := truncateContent(msg.Text, rule.Format.MaxContentLength)
		parts = append(parts, content)
		if cut {
			parts = append(parts, truncationNote(msg.Text))
		}
	}
	if rule.Format.Suffix != "" {
		parts = append(parts, renderTemplate(rule.Format.Suffix, msg))
	}
	return strings.Join(parts, "\n")
}

// embedStyle renders the message as a generated embed. The returned text holds
// only the attribution header.
func embedStyle(rule domain.ForwardingRule, msg domain.InboundMessage, header string, overridden bool) (string, domain.Embed) {
	limit := rule.Format.MaxContentLength
	if limit <= 0 || limit > maxEmbedDescription {
		limit = maxEmbedDescription
	}
	content, _ := truncateContent(msg.Text, limit)

	e := domain.Embed{
		Type:        "rich",
		Description: content,
		Color:       embedColor(rule.Format, msg),
	}
	if !msg.CreatedAt.IsZero() {
		e.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !overridden {
		e.Author = &domain.EmbedAuthor{
			Name:    msg.Author.Name(),
			URL:     msg.JumpURL,
			IconURL: msg.Author.AvatarURL,
		}
	}
	if rule.Format.Prefix != "" {
		e.Title = clampRunes(renderTemplate(rule.Format.Prefix, msg), maxEmbedTitle)
	}
	if rule.Format.IncludeSource {
		value := channelMention(msg.ChannelID)
		if msg.JumpURL != "" {
			value = "[Jump to message](" + msg.JumpURL + ") | " + value
		}
		e.Fields = append(e.Fields, domain.EmbedField{Name: "Source", Value: value})
	}
	if rule.Format.Suffix != "" {
		e.Footer = &domain.EmbedFooter{Text: renderTemplate(rule.Format.Suffix, msg)}
	}
	return header, e
}

func embedColor(f domain.Format, msg domain.InboundMessage) int {
	if f.EmbedColor != 0 {
		return f.EmbedColor
	}
	switch {
	case len(msg.Attachments) > 0:
		for _, a := range msg.Attachments {
			if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
				return colorImages
			}
		}
		return colorFiles
	case len(msg.Embeds) > 0:
		return colorEmbeds
	case utf8.RuneCountInString(msg.Text) > 200:
		return colorLong
	}
	return colorDefault
}

// passthroughEmbeds copies the source embeds the rule forwards, unmodified.
func passthroughEmbeds(f domain.Format, source []domain.Embed) []domain.Embed {
	if !f.ForwardEmbeds() || len(source) == 0 {
		return nil
	}
	out := make([]domain.Embed, 0, len(source))
	for _, e := range source {
		if embedFiltered(e, f.EmbedFilter) {
			continue
		}
		out = append(out, e)
	}
	return out
}

var adMarkers = []string{"sponsor", "advertisement", "promoted"}

func embedFiltered(e domain.Embed, filters []string) bool {
	for _, name := range filters {
		switch strings.ToLower(name) {
		case "empty":
			if e.Empty() {
				return true
			}
		case "discord":
			if e.Author != nil && strings.Contains(strings.ToLower(e.Author.Name), "discord") {
				return true
			}
		case "ad":
			title := strings.ToLower(e.Title)
			for _, m := range adMarkers {
				if strings.Contains(title, m) {
					return true
				}
			}
		}
	}
	return false
}
