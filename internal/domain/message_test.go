package domain

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want MessageType
	}{
		{"plain text", InboundMessage{Text: "hello"}, TypeText},
		{"empty", InboundMessage{}, TypeText},
		{"link", InboundMessage{Text: "see https://example.com"}, TypeLink},
		{"link with preview embed", InboundMessage{Text: "https://youtu.be/x", Embeds: []Embed{{Title: "video"}}}, TypeLink},
		{"embed only", InboundMessage{Embeds: []Embed{{Title: "bot card"}}}, TypeEmbed},
		{"sticker", InboundMessage{Stickers: []string{"wave"}}, TypeSticker},
		{"image", InboundMessage{Text: "look", Attachments: []Attachment{{ContentType: "image/png"}}}, TypeMedia},
		{"mixed files", InboundMessage{Attachments: []Attachment{{ContentType: "image/png"}, {ContentType: "application/pdf"}}}, TypeFile},
		{"unknown content type", InboundMessage{Attachments: []Attachment{{Filename: "x.bin"}}}, TypeFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.msg); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorName_FallsBackToUsername(t *testing.T) {
	a := Author{Username: "alice"}
	if a.Name() != "alice" {
		t.Fatalf("expected username fallback, got %q", a.Name())
	}
	a.DisplayName = "Alice A."
	if a.Name() != "Alice A." {
		t.Fatalf("expected display name, got %q", a.Name())
	}
}

func TestEmbedEmpty(t *testing.T) {
	if !(Embed{URL: "https://x"}).Empty() {
		t.Error("embed with only a URL should be empty")
	}
	if (Embed{Description: "d"}).Empty() {
		t.Error("embed with a description should not be empty")
	}
	if (Embed{VideoURL: "https://v"}).Empty() {
		t.Error("embed with only a video should not be empty")
	}
}
