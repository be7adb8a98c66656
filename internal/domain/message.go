package domain

import (
	"strings"
	"time"
)

// MessageType is the primary classification of an inbound message.
type MessageType string

const (
	TypeText    MessageType = "text"
	TypeMedia   MessageType = "media"
	TypeLink    MessageType = "link"
	TypeEmbed   MessageType = "embed"
	TypeFile    MessageType = "file"
	TypeSticker MessageType = "sticker"
)

// AllMessageTypes lists every recognised type in display order.
var AllMessageTypes = []MessageType{TypeText, TypeMedia, TypeLink, TypeEmbed, TypeFile, TypeSticker}

// Valid reports whether t is one of the recognised types.
func (t MessageType) Valid() bool {
	for _, known := range AllMessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// InboundMessage is a message observed in a source channel.
// It is never mutated after it has been received.
type InboundMessage struct {
	ID          string
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	Author      Author
	Text        string
	Embeds      []Embed
	Attachments []Attachment
	Stickers    []string // sticker names
	Type        MessageType
	CreatedAt   time.Time
	JumpURL     string
}

type Author struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	Bot         bool
}

// Name returns the display name, falling back to the username.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// Mention returns the platform mention markup for the author.
func (a Author) Mention() string {
	return "<@" + a.ID + ">"
}

// Attachment is a file reference carried by a message. Content is fetched by the transport.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	URL         string
}

// IsMedia reports whether the attachment is an image, video or audio file.
func (a Attachment) IsMedia() bool {
	ct := strings.ToLower(a.ContentType)
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/")
}

// TotalSize sums the byte sizes of the given attachments.
func TotalSize(attachments []Attachment) int64 {
	var total int64
	for _, a := range attachments {
		total += a.Size
	}
	return total
}

// Embed mirrors the rich embed fields the transport understands.
type Embed struct {
	Type        string       `json:"type,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Color       int          `json:"color,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Thumbnail   string       `json:"thumbnail_url,omitempty"`
	VideoURL    string       `json:"video_url,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Empty reports whether the embed carries no visible content.
func (e Embed) Empty() bool {
	return e.Title == "" && e.Description == "" && len(e.Fields) == 0 &&
		e.Footer == nil && !e.HasMedia()
}

// HasMedia reports whether the embed shows an image, thumbnail or video.
func (e Embed) HasMedia() bool {
	return e.ImageURL != "" || e.Thumbnail != "" || e.VideoURL != ""
}

// Classify returns the single primary type of msg.
// Attachments dominate, then stickers, then links in the text, then embeds; anything else is text.
func Classify(msg InboundMessage) MessageType {
	if len(msg.Attachments) > 0 {
		for _, a := range msg.Attachments {
			if !a.IsMedia() {
				return TypeFile
			}
		}
		return TypeMedia
	}
	if len(msg.Stickers) > 0 {
		return TypeSticker
	}
	if ContainsLink(msg.Text) {
		return TypeLink
	}
	if len(msg.Embeds) > 0 {
		return TypeEmbed
	}
	return TypeText
}

// ContainsLink reports whether text contains an http(s) URL.
func ContainsLink(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "http://") || strings.Contains(lower, "https://")
}
