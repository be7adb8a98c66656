package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Attribution controls how the original author is presented at the destination.
type Attribution string

const (
	// AttributionPreserve delivers under the author's name and avatar when the
	// transport allows it, and falls back to a text header otherwise.
	AttributionPreserve Attribution = "preserve"
	// AttributionGeneric delivers under the bot identity with a "forwarded from" note.
	AttributionGeneric Attribution = "generic"
)

// Style is the visual layout of a forwarded message.
type Style string

const (
	StyleNative Style = "native" // quoted block with a link to the original
	StyleText   Style = "text"
	StyleEmbed  Style = "embed"
)

// ForwardingRule relays messages from one source channel to one destination channel.
type ForwardingRule struct {
	ID                   string      `json:"id" yaml:"id"`
	GuildID              string      `json:"guild_id" yaml:"guild_id"`
	Name                 string      `json:"name" yaml:"name"`
	SourceChannelID      string      `json:"source_channel_id" yaml:"source_channel_id"`
	DestinationChannelID string      `json:"destination_channel_id" yaml:"destination_channel_id"`
	DestinationGuildID   string      `json:"destination_guild_id,omitempty" yaml:"destination_guild_id,omitempty"`
	Active               bool        `json:"active" yaml:"active"`
	Filters              Filters     `json:"filters" yaml:"filters"`
	Attribution          Attribution `json:"attribution" yaml:"attribution"`
	Format               Format      `json:"format" yaml:"format"`
	CreatedAt            time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt            time.Time   `json:"updated_at" yaml:"-"`
}

// Filters restrict which messages a rule accepts. Zero values mean "no restriction".
type Filters struct {
	AllowedTypes    []MessageType `json:"allowed_types,omitempty" yaml:"allowed_types,omitempty"`
	ContentPattern  string        `json:"content_pattern,omitempty" yaml:"content_pattern,omitempty"`
	RequireKeywords []string      `json:"require_keywords,omitempty" yaml:"require_keywords,omitempty"`
	BlockKeywords   []string      `json:"block_keywords,omitempty" yaml:"block_keywords,omitempty"`
	CaseSensitive   bool          `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
	WholeWord       bool          `json:"whole_word,omitempty" yaml:"whole_word,omitempty"`
	MinLength       *int          `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength       *int          `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// AllowsType reports whether t passes the type filter.
func (f Filters) AllowsType(t MessageType) bool {
	if len(f.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range f.AllowedTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// Format holds the presentation options of a rule.
type Format struct {
	Style            Style    `json:"style,omitempty" yaml:"style,omitempty"`
	Prefix           string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Suffix           string   `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	IncludeSource    bool     `json:"include_source,omitempty" yaml:"include_source,omitempty"`
	MaxContentLength int      `json:"max_content_length,omitempty" yaml:"max_content_length,omitempty"`
	DropEmbeds       bool     `json:"drop_embeds,omitempty" yaml:"drop_embeds,omitempty"`
	DropAttachments  bool     `json:"drop_attachments,omitempty" yaml:"drop_attachments,omitempty"`
	EmbedFilter      []string `json:"embed_filter,omitempty" yaml:"embed_filter,omitempty"`
	EmbedColor       int      `json:"embed_color,omitempty" yaml:"embed_color,omitempty"`
}

// ForwardEmbeds reports whether source embeds are carried over.
func (f Format) ForwardEmbeds() bool { return !f.DropEmbeds }

// ForwardAttachments reports whether source attachments are carried over.
func (f Format) ForwardAttachments() bool { return !f.DropAttachments }

var embedFilterNames = map[string]bool{"empty": true, "discord": true, "ad": true}

// Validate checks the rule for structural errors.
func (r ForwardingRule) Validate() error {
	var errs []string

	if r.SourceChannelID == "" {
		errs = append(errs, "source channel is required")
	}
	if r.DestinationChannelID == "" {
		errs = append(errs, "destination channel is required")
	}
	if r.SourceChannelID != "" && r.SourceChannelID == r.DestinationChannelID {
		errs = append(errs, "source and destination must differ")
	}
	switch r.Attribution {
	case "", AttributionPreserve, AttributionGeneric:
	default:
		errs = append(errs, fmt.Sprintf("unknown attribution %q", r.Attribution))
	}
	switch r.Format.Style {
	case "", StyleNative, StyleText, StyleEmbed:
	default:
		errs = append(errs, fmt.Sprintf("unknown style %q", r.Format.Style))
	}
	for _, t := range r.Filters.AllowedTypes {
		if !t.Valid() {
			errs = append(errs, fmt.Sprintf("unknown message type %q", t))
		}
	}
	for _, name := range r.Format.EmbedFilter {
		if !embedFilterNames[strings.ToLower(name)] {
			errs = append(errs, fmt.Sprintf("unknown embed filter %q", name))
		}
	}
	if r.Filters.ContentPattern != "" {
		if _, err := regexp.Compile(r.Filters.ContentPattern); err != nil {
			errs = append(errs, fmt.Sprintf("invalid content pattern: %v", err))
		}
	}
	if r.Filters.MinLength != nil && *r.Filters.MinLength < 0 {
		errs = append(errs, "min length must be >= 0")
	}
	if r.Filters.MinLength != nil && r.Filters.MaxLength != nil && *r.Filters.MinLength > *r.Filters.MaxLength {
		errs = append(errs, "min length must not exceed max length")
	}
	if r.Format.MaxContentLength < 0 {
		errs = append(errs, "max content length must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rule %s: %s", r.ID, strings.Join(errs, "; "))
	}
	return nil
}

// WithDefaults fills unset attribution and style.
func (r ForwardingRule) WithDefaults() ForwardingRule {
	if r.Attribution == "" {
		r.Attribution = AttributionGeneric
	}
	if r.Format.Style == "" {
		r.Format.Style = StyleNative
	}
	return r
}

// GuildSettings are the per-guild switches read by the engine.
type GuildSettings struct {
	GuildID           string `json:"guild_id"`
	ForwardingEnabled bool   `json:"forwarding_enabled"`
	DailyLimit        int    `json:"daily_limit"` // 0 disables the limit
}
