package forward

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"relaybot/internal/domain"
)

const (
	// Platform limits for a single message.
	maxMessageRunes     = 2000
	maxEmbedsPerMessage = 10
	maxEmbedDescription = 4096
	maxEmbedTitle       = 256

	defaultContentLength = 2000
	timestampLayout      = "2006-01-02 15:04"
)

// renderTemplate substitutes the {placeholders} supported in rule prefixes and suffixes.
func renderTemplate(tmpl string, msg domain.InboundMessage) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	guild := msg.GuildName
	if guild == "" {
		guild = "DM"
	}
	firstAttachment := ""
	if len(msg.Attachments) > 0 {
		firstAttachment = msg.Attachments[0].Filename
	}
	timestamp := ""
	if !msg.CreatedAt.IsZero() {
		timestamp = msg.CreatedAt.UTC().Format(timestampLayout)
	}

	r := strings.NewReplacer(
		"{author}", msg.Author.Name(),
		"{author_id}", msg.Author.ID,
		"{author_mention}", msg.Author.Mention(),
		"{channel}", msg.ChannelName,
		"{channel_mention}", channelMention(msg.ChannelID),
		"{guild}", guild,
		"{guild_id}", msg.GuildID,
		"{message_id}", msg.ID,
		"{message_url}", msg.JumpURL,
		"{timestamp}", timestamp,
		"{attachment_count}", strconv.Itoa(len(msg.Attachments)),
		"{first_attachment}", firstAttachment,
		"{embed_count}", strconv.Itoa(len(msg.Embeds)),
	)
	return r.Replace(tmpl)
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// truncateContent shortens s to limit characters, ending it with "...".
// The second return value is false when s already fits.
func truncateContent(s string, limit int) (string, bool) {
	if limit <= 0 {
		limit = defaultContentLength
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	if limit <= 3 {
		return string([]rune(s)[:limit]), true
	}
	return string([]rune(s)[:limit-3]) + "...", true
}

func truncationNote(original string) string {
	return fmt.Sprintf("*(message truncated, %d chars total)*", utf8.RuneCountInString(original))
}

// clampRunes cuts s to at most n characters without a marker.
func clampRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func quoteLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return lines
}
