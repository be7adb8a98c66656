package channel

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func newTestGateway(api *fakeAPI) *Discord {
	return &Discord{
		api:       api,
		embedWait: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		logger:    testLogger(),
		botID:     "bot",
	}
}

func guildMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
	}
}

func TestDiscord_PublishesGuildMessages(t *testing.T) {
	d := newTestGateway(&fakeAPI{})
	bus := newRecordingBus()

	d.handle(context.Background(), bus, guildMessage("hello"))

	got := bus.published()
	if len(got) != 1 || got[0].Text != "hello" || got[0].ChannelID != "c1" {
		t.Fatalf("unexpected published messages: %+v", got)
	}
}

func TestDiscord_IgnoresBotsDMsAndOwnWebhooks(t *testing.T) {
	d := newTestGateway(&fakeAPI{})
	d.IgnoreWebhooks(func(id string) bool { return id == "ours" })
	bus := newRecordingBus()

	bot := guildMessage("x")
	bot.Author.Bot = true

	self := guildMessage("x")
	self.Author.ID = "bot"

	dm := guildMessage("x")
	dm.GuildID = ""

	hook := guildMessage("x")
	hook.WebhookID = "ours"

	noAuthor := guildMessage("x")
	noAuthor.Author = nil

	for _, m := range []*discordgo.Message{bot, self, dm, hook, noAuthor, nil} {
		d.handle(context.Background(), bus, m)
	}
	if n := len(bus.published()); n != 0 {
		t.Fatalf("expected nothing published, got %d", n)
	}
}

func TestDiscord_WaitsForEmbeds(t *testing.T) {
	withEmbed := guildMessage("https://youtu.be/abc")
	withEmbed.GuildID = "" // REST responses omit it
	withEmbed.Embeds = []*discordgo.MessageEmbed{{Title: "video"}}

	api := &fakeAPI{messages: map[string][]*discordgo.Message{
		"m1": {guildMessage("https://youtu.be/abc"), withEmbed},
	}}
	d := newTestGateway(api)
	bus := newRecordingBus()

	d.handle(context.Background(), bus, guildMessage("https://youtu.be/abc"))

	select {
	case msg := <-bus.Subscribe():
		if len(msg.Embeds) != 1 || msg.Embeds[0].Title != "video" {
			t.Fatalf("expected refreshed embeds, got %+v", msg.Embeds)
		}
		if msg.GuildID != "g1" {
			t.Fatalf("guild ID should be restored, got %q", msg.GuildID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not published")
	}
	d.wg.Wait()
	if api.fetches != 2 {
		t.Fatalf("expected 2 fetches, got %d", api.fetches)
	}
}

func TestDiscord_PublishesWithoutEmbedsAfterWaits(t *testing.T) {
	api := &fakeAPI{}
	d := newTestGateway(api)
	bus := newRecordingBus()

	d.handle(context.Background(), bus, guildMessage("https://github.com/x/y"))
	d.wg.Wait()

	if len(bus.published()) != 1 {
		t.Fatal("message should still be forwarded")
	}
	if api.fetches != 3 {
		t.Fatalf("expected 3 fetches, got %d", api.fetches)
	}
}

func TestDiscord_DropsDeletedMessageWhileWaiting(t *testing.T) {
	api := &fakeAPI{messageErr: restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)}
	d := newTestGateway(api)
	bus := newRecordingBus()

	d.handle(context.Background(), bus, guildMessage("https://x.com/a/status/1"))
	d.wg.Wait()

	if len(bus.published()) != 0 {
		t.Fatal("deleted message should not be forwarded")
	}
}

func TestDiscord_NoWaitWhenEmbedsPresent(t *testing.T) {
	api := &fakeAPI{}
	d := newTestGateway(api)
	bus := newRecordingBus()

	m := guildMessage("https://youtu.be/abc")
	m.Embeds = []*discordgo.MessageEmbed{{Title: "already"}}
	d.handle(context.Background(), bus, m)

	if len(bus.published()) != 1 || api.fetches != 0 {
		t.Fatalf("expected immediate publish without fetches (fetches=%d)", api.fetches)
	}
}
