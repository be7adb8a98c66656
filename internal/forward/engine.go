package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/domain"
	"relaybot/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

const DefaultDailyLimit = 100

type EngineConfig struct {
	Rules    domain.RuleStore
	Capacity domain.CapacitySource
	Reach    domain.Reachability
	Sender   domain.Sender
	Quota    domain.QuotaCounter // optional
	Events   *bus.EventBus       // optional

	Limits            domain.CapacityLimits
	SendTimeout       time.Duration
	DefaultDailyLimit int
	ExtraFilters      []Filter
	Logger            *slog.Logger
}

// Engine matches inbound messages against forwarding rules and delivers them
// to every matched destination concurrently.
type Engine struct {
	rules      domain.RuleStore
	capacity   domain.CapacitySource
	quota      domain.QuotaCounter
	events     *bus.EventBus
	limits     domain.CapacityLimits
	matcher    *Matcher
	composer   *Composer
	budgeter   Budgeter
	dispatcher *Dispatcher
	dailyLimit int
	logger     *slog.Logger

	inflight sync.WaitGroup
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Rules == nil {
		return nil, errors.New("forward: rule store is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("forward: sender is required")
	}
	if cfg.Limits == (domain.CapacityLimits{}) {
		cfg.Limits = domain.DefaultCapacityLimits()
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if cfg.DefaultDailyLimit < 0 {
		cfg.DefaultDailyLimit = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		rules:      cfg.Rules,
		capacity:   cfg.Capacity,
		quota:      cfg.Quota,
		events:     cfg.Events,
		limits:     cfg.Limits,
		matcher:    NewMatcher(cfg.Reach, cfg.Logger, cfg.ExtraFilters...),
		composer:   NewComposer(cfg.Sender.SupportsIdentityOverride()),
		budgeter:   NewBudgeter(cfg.Sender.MaxRequestBytes()),
		dispatcher: NewDispatcher(DispatcherConfig{Sender: cfg.Sender, SendTimeout: cfg.SendTimeout, Logger: cfg.Logger}),
		dailyLimit: cfg.DefaultDailyLimit,
		logger:     cfg.Logger,
	}, nil
}

// HandleInboundMessage forwards msg to every matching destination and returns
// one outcome per matched rule, in rule order. It never returns an error:
// store failures yield no outcomes and per-destination problems are captured
// in the outcomes themselves.
func (e *Engine) HandleInboundMessage(ctx context.Context, msg domain.InboundMessage) []domain.DispatchOutcome {
	ctx, span := telemetry.StartForwardSpan(ctx, "forward.message",
		attribute.String("message.id", msg.ID),
		attribute.String("channel.id", msg.ChannelID),
	)
	defer span.End()

	if msg.Type == "" {
		msg.Type = domain.Classify(msg)
	}
	e.emit(bus.Event{
		Type:    bus.EventMessageReceived,
		Source:  "forward",
		Payload: map[string]any{"message_id": msg.ID, "guild_id": msg.GuildID, "type": string(msg.Type)},
	})

	settings, err := e.settings(ctx, msg.GuildID)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load guild settings", "guild_id", msg.GuildID, "err", err)
		return nil
	}
	if !settings.ForwardingEnabled {
		e.logger.DebugContext(ctx, "forwarding disabled for guild", "guild_id", msg.GuildID)
		return nil
	}

	rules, err := e.rules.RulesForSource(ctx, msg.ChannelID)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load rules", "channel", msg.ChannelID, "err", err)
		return nil
	}
	matched := e.matcher.Match(ctx, msg, rules)
	if len(matched) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("forward.matched", len(matched)))

	outcomes := make([]domain.DispatchOutcome, len(matched))
	var wg sync.WaitGroup
	for i, rule := range matched {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.forwardOne(ctx, msg, rule, settings)
			e.report(ctx, outcomes[i])
		}()
	}
	wg.Wait()
	return outcomes
}

// Submit handles msg in the background. Use Wait to join outstanding work.
func (e *Engine) Submit(ctx context.Context, msg domain.InboundMessage) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.HandleInboundMessage(ctx, msg)
	}()
}

// Run drains inbound until ctx is cancelled or the bus is closed. It returns
// once every message it submitted has been handled.
func (e *Engine) Run(ctx context.Context, inbound domain.MessageBus) error {
	msgs := inbound.Subscribe()
	defer e.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			e.Submit(ctx, msg)
		}
	}
}

// Wait blocks until every submitted message has been handled.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) settings(ctx context.Context, guildID string) (domain.GuildSettings, error) {
	s, err := e.rules.GuildSettings(ctx, guildID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.GuildSettings{GuildID: guildID, ForwardingEnabled: true, DailyLimit: e.dailyLimit}, nil
	}
	return s, err
}

// forwardOne runs quota, compose, capacity, budget and dispatch for one destination.
func (e *Engine) forwardOne(ctx context.Context, msg domain.InboundMessage, rule domain.ForwardingRule, settings domain.GuildSettings) (out domain.DispatchOutcome) {
	start := time.Now()
	reserved := false
	ctx, span := telemetry.StartForwardSpan(ctx, "forward.destination",
		attribute.String("rule.id", rule.ID),
		attribute.String("destination.id", rule.DestinationChannelID),
	)
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic while forwarding", "rule_id", rule.ID, "panic", r)
			out = domain.DispatchOutcome{
				Status: domain.StatusFailed,
				Reason: domain.ReasonTransportError,
				Err:    fmt.Sprintf("panic: %v", r),
			}
		}
		// Only forwards that reach the destination count against the limit.
		if reserved && out.Status == domain.StatusFailed {
			e.releaseQuota(ctx, msg.GuildID)
		}
		out.RuleID = rule.ID
		out.GuildID = msg.GuildID
		out.MessageID = msg.ID
		out.SourceChannelID = msg.ChannelID
		out.DestinationChannelID = rule.DestinationChannelID
		if out.Duration == 0 {
			out.Duration = time.Since(start)
		}
		telemetry.EndWithStatus(span, string(out.Status), out.Err)
	}()

	if settings.DailyLimit > 0 && e.quota != nil {
		ok, err := e.quota.Reserve(ctx, msg.GuildID, settings.DailyLimit)
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "quota check failed, forwarding anyway", "guild_id", msg.GuildID, "err", err)
		case ok:
			reserved = true
		default:
			e.emit(bus.Event{
				Type:    bus.EventQuotaExhausted,
				Source:  "forward",
				Payload: map[string]any{"guild_id": msg.GuildID, "limit": settings.DailyLimit},
			})
			return domain.DispatchOutcome{
				Status: domain.StatusFailed,
				Reason: domain.ReasonQuotaExceeded,
				Err:    fmt.Sprintf("daily limit of %d forwards reached", settings.DailyLimit),
			}
		}
	}

	payload := e.composer.Compose(rule, msg)

	destGuild := rule.DestinationGuildID
	if destGuild == "" {
		destGuild = msg.GuildID
	}
	budget := e.budgeter.Select(e.profile(ctx, destGuild), payload.Attachments)

	return e.dispatcher.Dispatch(ctx, payload, budget)
}

func (e *Engine) releaseQuota(ctx context.Context, guildID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := e.quota.Release(ctx, guildID); err != nil {
		e.logger.WarnContext(ctx, "quota release failed", "guild_id", guildID, "err", err)
	}
}

// profile resolves the destination guild's capacity. Lookup failures fall back
// to the lowest tier.
func (e *Engine) profile(ctx context.Context, guildID string) domain.GuildCapacityProfile {
	if e.capacity == nil {
		return domain.NewCapacityProfile(guildID, 0, e.limits)
	}
	p, err := e.capacity.CapacityProfile(ctx, guildID)
	if err != nil {
		e.logger.WarnContext(ctx, "capacity lookup failed, using default ceiling", "guild_id", guildID, "err", err)
		return domain.NewCapacityProfile(guildID, 0, e.limits)
	}
	if p.AttachmentCeiling <= 0 {
		p = domain.NewCapacityProfile(guildID, p.Tier, e.limits)
	}
	return p
}

func (e *Engine) report(ctx context.Context, o domain.DispatchOutcome) {
	attrs := []any{
		"rule_id", o.RuleID,
		"message_id", o.MessageID,
		"destination", o.DestinationChannelID,
		"attempts", o.Attempts,
		"duration", o.Duration,
	}
	switch o.Status {
	case domain.StatusDelivered:
		e.logger.InfoContext(ctx, "message forwarded", attrs...)
	case domain.StatusDeliveredDegraded:
		attrs = append(attrs, "reason", o.Reason, "omitted", o.OmittedCount, "omitted_bytes", o.OmittedBytes)
		e.logger.WarnContext(ctx, "message forwarded without some attachments", attrs...)
	default:
		attrs = append(attrs, "reason", o.Reason, "err", o.Err)
		e.logger.ErrorContext(ctx, "forward failed", attrs...)
	}
	if e.events != nil {
		e.events.EmitOutcome("forward", o)
	}
}

func (e *Engine) emit(ev bus.Event) {
	if e.events != nil {
		e.events.Emit(ev)
	}
}
