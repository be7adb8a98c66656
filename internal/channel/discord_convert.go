package channel

import (
	"regexp"
	"strings"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// embeddablePatterns match links Discord usually unfurls into embeds a few
// seconds after the message is created.
var embeddablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://(?:www\.)?twitter\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?x\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?youtube\.com/watch\?\S+`),
	regexp.MustCompile(`(?i)https?://youtu\.be/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?tiktok\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?reddit\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?github\.com/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?twitch\.tv/\S+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?spotify\.com/\S+`),
	regexp.MustCompile(`(?i)https?://\S+\.(jpg|jpeg|png|gif|webp|mp4|webm|mov)\b`),
}

func containsEmbeddableURL(content string) bool {
	for _, re := range embeddablePatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// jumpURL builds the link that opens a message in the client.
func jumpURL(guildID, channelID, messageID string) string {
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}

// toInbound converts a gateway message into the engine's representation.
func toInbound(m *discordgo.Message, guildName, channelName string) domain.InboundMessage {
	msg := domain.InboundMessage{
		ID:          m.ID,
		GuildID:     m.GuildID,
		GuildName:   guildName,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		Text:        m.Content,
		CreatedAt:   m.Timestamp,
		JumpURL:     jumpURL(m.GuildID, m.ChannelID, m.ID),
	}

	if m.Author != nil {
		msg.Author = domain.Author{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: m.Author.GlobalName,
			AvatarURL:   m.Author.AvatarURL(""),
			Bot:         m.Author.Bot,
		}
	}
	if m.Member != nil && m.Member.Nick != "" {
		msg.Author.DisplayName = m.Member.Nick
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
			URL:         a.URL,
		})
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		msg.Embeds = append(msg.Embeds, fromDiscordEmbed(e))
	}
	for _, s := range m.StickerItems {
		if s != nil {
			msg.Stickers = append(msg.Stickers, s.Name)
		}
	}

	msg.Type = domain.Classify(msg)
	return msg
}

func fromDiscordEmbed(e *discordgo.MessageEmbed) domain.Embed {
	out := domain.Embed{
		Type:        string(e.Type),
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Timestamp:   e.Timestamp,
		Color:       e.Color,
	}
	if e.Author != nil {
		out.Author = &domain.EmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Footer != nil {
		out.Footer = &domain.EmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	if e.Image != nil {
		out.ImageURL = e.Image.URL
	}
	if e.Thumbnail != nil {
		out.Thumbnail = e.Thumbnail.URL
	}
	if e.Video != nil {
		out.VideoURL = e.Video.URL
	}
	for _, f := range e.Fields {
		if f != nil {
			out.Fields = append(out.Fields, domain.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
	}
	return out
}

// toDiscordEmbeds converts outbound embeds. Video is dropped: bots cannot set it.
func toDiscordEmbeds(embeds []domain.Embed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Timestamp:   e.Timestamp,
			Color:       e.Color,
		}
		if strings.EqualFold(e.Type, string(discordgo.EmbedTypeRich)) || e.Type == "" {
			me.Type = discordgo.EmbedTypeRich
		}
		if e.Author != nil {
			me.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
		}
		if e.Footer != nil {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
		}
		if e.ImageURL != "" {
			me.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
		}
		if e.Thumbnail != "" {
			me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, me)
	}
	return out
}
