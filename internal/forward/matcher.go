package forward

import (
	"context"
	"log/slog"

	"relaybot/internal/domain"
)

// Matcher selects the rules that apply to an inbound message.
type Matcher struct {
	filters []Filter
	reach   domain.Reachability
	logger  *slog.Logger
}

// NewMatcher builds a matcher with the default filter chain followed by extra.
// reach may be nil, in which case every destination is treated as reachable.
func NewMatcher(reach domain.Reachability, logger *slog.Logger, extra ...Filter) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	filters := DefaultFilters()
	filters = append(filters, extra...)
	return &Matcher{filters: filters, reach: reach, logger: logger}
}

// Match returns the rules whose filters all pass, in the order given.
// Destinations are re-checked for reachability on every call; an unreachable
// destination skips the rule for this message only.
func (m *Matcher) Match(ctx context.Context, msg domain.InboundMessage, rules []domain.ForwardingRule) []domain.ForwardingRule {
	if msg.Type == "" {
		msg.Type = domain.Classify(msg)
	}

	var matched []domain.ForwardingRule
	for _, rule := range rules {
		if !m.accepts(rule, msg) {
			continue
		}
		if m.reach != nil && !m.reach.Reachable(ctx, rule.DestinationChannelID) {
			m.logger.Debug("destination unreachable, skipping rule",
				"rule_id", rule.ID,
				"destination", rule.DestinationChannelID,
			)
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}

func (m *Matcher) accepts(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
	if !rule.Active {
		return false
	}
	if rule.SourceChannelID != msg.ChannelID || rule.SourceChannelID == rule.DestinationChannelID {
		return false
	}
	for _, f := range m.filters {
		if !f.Allow(rule, msg) {
			return false
		}
	}
	return true
}
