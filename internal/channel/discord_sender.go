package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// DiscordAPI is the subset of *discordgo.Session used by the transport.
type DiscordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// DiscordSenderConfig configures the outbound Discord transport.
type DiscordSenderConfig struct {
	API             DiscordAPI
	UseWebhooks     bool
	WebhookName     string
	RatePerMinute   int
	Burst           int
	MaxRequestBytes int64
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// DiscordSender delivers payloads through channel webhooks (author identity
// preserved) or as plain bot messages.
type DiscordSender struct {
	api             DiscordAPI
	useWebhooks     bool
	webhookName     string
	maxRequestBytes int64
	throttle        *throttle
	fetcher         *attachmentFetcher
	logger          *slog.Logger

	mu       sync.Mutex
	webhooks map[string]*discordgo.Webhook // channel ID -> webhook
	own      map[string]bool               // webhook IDs used by this bot
}

func NewDiscordSender(cfg DiscordSenderConfig) *DiscordSender {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WebhookName == "" {
		cfg.WebhookName = "relaybot"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(60 * time.Second)
	}
	return &DiscordSender{
		api:             cfg.API,
		useWebhooks:     cfg.UseWebhooks,
		webhookName:     cfg.WebhookName,
		maxRequestBytes: cfg.MaxRequestBytes,
		throttle:        newThrottle(cfg.Burst, float64(cfg.RatePerMinute), 0),
		fetcher:         newAttachmentFetcher(cfg.HTTPClient, cfg.Logger),
		logger:          cfg.Logger,
		webhooks:        make(map[string]*discordgo.Webhook),
		own:             make(map[string]bool),
	}
}

func (s *DiscordSender) SupportsIdentityOverride() bool { return s.useWebhooks }

func (s *DiscordSender) MaxRequestBytes() int64 { return s.maxRequestBytes }

// OwnsWebhook reports whether id is a webhook this sender posts through.
func (s *DiscordSender) OwnsWebhook(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.own[id]
}

// Send delivers p to its destination channel.
func (s *DiscordSender) Send(ctx context.Context, p domain.OutboundPayload) error {
	if s.maxRequestBytes > 0 && domain.TotalSize(p.Attachments) > s.maxRequestBytes {
		return fmt.Errorf("%w: %d attachment bytes exceed request limit %d",
			domain.ErrPayloadTooLarge, domain.TotalSize(p.Attachments), s.maxRequestBytes)
	}

	if err := s.throttle.Take(ctx, p.DestinationChannelID); err != nil {
		return err
	}

	files, err := s.fetcher.Files(ctx, p.Attachments)
	if err != nil {
		return err
	}

	opts := []discordgo.RequestOption{
		discordgo.WithContext(ctx),
		discordgo.WithRetryOnRatelimit(false),
		discordgo.WithRestRetries(0),
	}
	embeds := toDiscordEmbeds(p.Embeds)

	if s.useWebhooks {
		hook, err := s.webhook(ctx, p.DestinationChannelID)
		if err == nil {
			params := &discordgo.WebhookParams{
				Content:         p.Text,
				Embeds:          embeds,
				Files:           files,
				AllowedMentions: noMentions(),
			}
			if p.Identity != nil {
				params.Username = p.Identity.Username
				params.AvatarURL = p.Identity.AvatarURL
			}
			_, err = s.api.WebhookExecute(hook.ID, hook.Token, true, params, opts...)
			err = mapDiscordError(err)
			if errors.Is(err, errWebhookGone) {
				s.forgetWebhook(p.DestinationChannelID)
			}
			return err
		}
		if !errors.Is(err, domain.ErrPermissionDenied) {
			return err
		}
		// Without Manage Webhooks the bot can still post as itself.
		s.logger.Warn("webhook unavailable, sending as bot",
			"channel_id", p.DestinationChannelID, "err", err)
	}

	text := p.Text
	if p.Identity != nil {
		text = joinLines(fallbackHeader(p), text)
	}
	_, err = s.api.ChannelMessageSendComplex(p.DestinationChannelID, &discordgo.MessageSend{
		Content:         text,
		Embeds:          embeds,
		Files:           files,
		AllowedMentions: noMentions(),
	}, opts...)
	return mapDiscordError(err)
}

// webhook returns the cached webhook for channelID, reusing one of ours that
// already exists before creating a new one.
func (s *DiscordSender) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	s.mu.Lock()
	hook, ok := s.webhooks[channelID]
	s.mu.Unlock()
	if ok {
		return hook, nil
	}

	opt := discordgo.WithContext(ctx)
	hooks, err := s.api.ChannelWebhooks(channelID, opt)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", mapDiscordError(err))
	}
	for _, h := range hooks {
		// Only webhooks created by our application expose a token.
		if h.Name == s.webhookName && h.Token != "" {
			hook = h
			break
		}
	}
	if hook == nil {
		hook, err = s.api.WebhookCreate(channelID, s.webhookName, "", opt)
		if err != nil {
			return nil, fmt.Errorf("create webhook: %w", mapDiscordError(err))
		}
		s.logger.Info("webhook created", "channel_id", channelID, "webhook_id", hook.ID)
	}

	s.mu.Lock()
	if existing, ok := s.webhooks[channelID]; ok {
		hook = existing
	} else {
		s.webhooks[channelID] = hook
	}
	s.own[hook.ID] = true
	s.mu.Unlock()
	return hook, nil
}

func (s *DiscordSender) forgetWebhook(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.webhooks, channelID)
}

// fallbackHeader attributes a message whose identity override was not applied.
func fallbackHeader(p domain.OutboundPayload) string {
	if p.FallbackHeader != "" {
		return p.FallbackHeader
	}
	return "**" + p.Identity.Username + "**"
}

func joinLines(header, body string) string {
	if body == "" {
		return header
	}
	return header + "\n" + body
}

// noMentions keeps forwarded text from pinging anyone at the destination.
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}
