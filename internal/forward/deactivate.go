package forward

import (
	"context"
	"log/slog"

	"relaybot/internal/bus"
	"relaybot/internal/domain"
)

// RuleDeactivator marks a rule inactive.
type RuleDeactivator interface {
	DeactivateRule(ctx context.Context, ruleID, reason string) error
}

// DeactivateOnPermanentFailure subscribes to outcome events and deactivates rules
// whose destination failed with a permanent reason. The engine itself never
// changes rule state. It returns the handler ID for EventBus.Off.
func DeactivateOnPermanentFailure(events *bus.EventBus, store RuleDeactivator, logger *slog.Logger) string {
	return events.On(bus.EventForwardOutcome, func(ev bus.Event) {
		o := ev.Outcome
		if o == nil || o.Status != domain.StatusFailed || !Permanent(o.Reason) {
			return
		}
		if err := store.DeactivateRule(context.Background(), o.RuleID, o.Reason); err != nil {
			logger.Error("failed to deactivate rule", "rule_id", o.RuleID, "err", err)
			return
		}
		logger.Warn("rule deactivated", "rule_id", o.RuleID, "reason", o.Reason)
		events.Emit(bus.Event{
			Type:    bus.EventRuleDeactivated,
			Source:  "forward",
			Payload: map[string]any{"rule_id": o.RuleID, "reason": o.Reason},
		})
	})
}
