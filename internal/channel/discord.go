package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// DefaultEmbedWait is how long the gateway waits for link previews before
// forwarding a message that has none yet.
var DefaultEmbedWait = []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second}

// Discord listens to guild messages and publishes them to the bus.
type Discord struct {
	session   *discordgo.Session
	api       DiscordAPI
	names     nameLookup
	embedWait []time.Duration
	logger    *slog.Logger

	ignoreWebhook func(id string) bool
	botID         string
	wg            sync.WaitGroup
}

// DiscordConfig configures the Discord gateway.
type DiscordConfig struct {
	Token     string
	EmbedWait []time.Duration // nil means DefaultEmbedWait, empty disables waiting
	Logger    *slog.Logger
}

type nameLookup interface {
	GuildName(guildID string) string
	ChannelName(channelID string) string
}

// NewDiscord creates the gateway session. It does not connect.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EmbedWait == nil {
		cfg.EmbedWait = DefaultEmbedWait
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return &Discord{
		session:   session,
		api:       session,
		names:     newDiscordDirectory(session, session.State, domain.CapacityLimits{}),
		embedWait: cfg.EmbedWait,
		logger:    cfg.Logger,
	}, nil
}

func (d *Discord) Name() string { return "discord" }

// Session exposes the underlying session for the sender and directory.
func (d *Discord) Session() *discordgo.Session { return d.session }

// IgnoreWebhooks drops messages posted through webhooks for which fn returns
// true, so forwarded copies are never forwarded again.
func (d *Discord) IgnoreWebhooks(fn func(id string) bool) { d.ignoreWebhook = fn }

// Open connects to the gateway.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	if d.session.State != nil && d.session.State.User != nil {
		d.botID = d.session.State.User.ID
		d.logger.Info("discord bot connected", "user", d.session.State.User.Username)
	}
	return nil
}

// Start registers the message handler and blocks until ctx is done.
// Open must have been called.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	remove := d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handle(ctx, bus, m.Message)
	})

	<-ctx.Done()
	remove()
	d.logger.Info("discord bot disconnecting")
	d.wg.Wait()
	return d.session.Close()
}

func (d *Discord) handle(ctx context.Context, bus domain.MessageBus, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.GuildID == "" {
		return
	}
	if m.WebhookID != "" && d.ignoreWebhook != nil && d.ignoreWebhook(m.WebhookID) {
		return
	}
	if m.Author.Bot || m.Author.ID == d.botID {
		return
	}

	if len(m.Embeds) == 0 && len(d.embedWait) > 0 && containsEmbeddableURL(m.Content) {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			refreshed, ok := d.awaitEmbeds(ctx, m)
			if ok {
				d.publish(bus, refreshed)
			}
		}()
		return
	}
	d.publish(bus, m)
}

// awaitEmbeds re-fetches m until Discord attaches link previews or the waits
// run out. It reports false when the message became unreadable or ctx ended.
func (d *Discord) awaitEmbeds(ctx context.Context, m *discordgo.Message) (*discordgo.Message, bool) {
	current := m
	for _, wait := range d.embedWait {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		fetched, err := d.api.ChannelMessage(m.ChannelID, m.ID, discordgo.WithContext(ctx))
		if err != nil {
			d.logger.Debug("message vanished while waiting for embeds", "message_id", m.ID, "err", err)
			return nil, false
		}
		// REST responses omit the guild ID.
		if fetched.GuildID == "" {
			fetched.GuildID = m.GuildID
		}
		if fetched.Member == nil {
			fetched.Member = m.Member
		}
		current = fetched
		if len(fetched.Embeds) > 0 {
			break
		}
	}
	return current, true
}

func (d *Discord) publish(bus domain.MessageBus, m *discordgo.Message) {
	var guildName, channelName string
	if d.names != nil {
		guildName = d.names.GuildName(m.GuildID)
		channelName = d.names.ChannelName(m.ChannelID)
	}
	msg := toInbound(m, guildName, channelName)

	d.logger.Debug("discord message received",
		"message_id", msg.ID,
		"channel_id", msg.ChannelID,
		"type", msg.Type,
		"attachments", len(msg.Attachments),
	)
	bus.Publish(msg)
}
