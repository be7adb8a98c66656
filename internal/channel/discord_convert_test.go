package channel

import (
	"testing"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

func TestToInbound(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "look",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"},
		Member:    &discordgo.Member{Nick: "Ally"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "cat.png", ContentType: "image/png", Size: 1024, URL: "https://cdn/cat.png"},
		},
		Embeds:       []*discordgo.MessageEmbed{{Title: "t", Image: &discordgo.MessageEmbedImage{URL: "https://img"}}},
		StickerItems: []*discordgo.StickerItem{{ID: "s1", Name: "wave"}},
	}

	msg := toInbound(m, "Guild One", "general")

	if msg.GuildName != "Guild One" || msg.ChannelName != "general" {
		t.Fatalf("names not carried: %+v", msg)
	}
	if msg.Author.Name() != "Ally" {
		t.Fatalf("nickname should win, got %q", msg.Author.Name())
	}
	if msg.JumpURL != "https://discord.com/channels/g1/c1/m1" {
		t.Fatalf("unexpected jump URL %q", msg.JumpURL)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Size != 1024 {
		t.Fatalf("unexpected attachments: %+v", msg.Attachments)
	}
	if len(msg.Embeds) != 1 || msg.Embeds[0].ImageURL != "https://img" {
		t.Fatalf("unexpected embeds: %+v", msg.Embeds)
	}
	if len(msg.Stickers) != 1 || msg.Stickers[0] != "wave" {
		t.Fatalf("unexpected stickers: %v", msg.Stickers)
	}
	if msg.Type != domain.TypeMedia {
		t.Fatalf("expected media type, got %s", msg.Type)
	}
	if !msg.CreatedAt.Equal(ts) {
		t.Fatalf("timestamp not carried")
	}
}

func TestToInbound_GlobalNameWithoutMember(t *testing.T) {
	m := &discordgo.Message{ID: "m1", GuildID: "g", ChannelID: "c", Content: "hi",
		Author: &discordgo.User{ID: "u1", Username: "bob", GlobalName: "Bobby"}}
	msg := toInbound(m, "", "")
	if msg.Author.Name() != "Bobby" {
		t.Fatalf("expected global name, got %q", msg.Author.Name())
	}
	if msg.Type != domain.TypeText {
		t.Fatalf("expected text, got %s", msg.Type)
	}
}

func TestContainsEmbeddableURL(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"watch https://youtu.be/abc", true},
		{"https://www.youtube.com/watch?v=abc", true},
		{"see https://x.com/user/status/1", true},
		{"pic: https://example.com/img.PNG", true},
		{"https://example.com/page", false},
		{"no links here", false},
	}
	for _, tt := range tests {
		if got := containsEmbeddableURL(tt.content); got != tt.want {
			t.Errorf("containsEmbeddableURL(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestToDiscordEmbeds(t *testing.T) {
	if toDiscordEmbeds(nil) != nil {
		t.Fatal("nil input should give nil")
	}
	out := toDiscordEmbeds([]domain.Embed{{
		Title:     "t",
		Color:     0x5865F2,
		Author:    &domain.EmbedAuthor{Name: "a"},
		Footer:    &domain.EmbedFooter{Text: "f"},
		Thumbnail: "https://thumb",
		VideoURL:  "https://video",
		Fields:    []domain.EmbedField{{Name: "n", Value: "v", Inline: true}},
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(out))
	}
	e := out[0]
	if e.Type != discordgo.EmbedTypeRich || e.Author.Name != "a" || e.Footer.Text != "f" {
		t.Fatalf("unexpected embed: %+v", e)
	}
	if e.Thumbnail == nil || e.Thumbnail.URL != "https://thumb" {
		t.Fatalf("thumbnail not carried")
	}
	if e.Video != nil {
		t.Fatal("video cannot be set by bots")
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Fatalf("fields not carried: %+v", e.Fields)
	}
}
