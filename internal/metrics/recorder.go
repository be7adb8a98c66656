package metrics

import (
	"relaybot/internal/bus"
)

// Recorder feeds event bus traffic into the Prometheus collectors.
type Recorder struct {
	events *bus.EventBus
	ids    map[string]string // event type -> handler ID
}

// Attach subscribes a Recorder to events.
func Attach(events *bus.EventBus) *Recorder {
	r := &Recorder{events: events, ids: make(map[string]string)}
	r.ids[bus.EventMessageReceived] = events.On(bus.EventMessageReceived, r.onMessage)
	r.ids[bus.EventForwardOutcome] = events.On(bus.EventForwardOutcome, r.onOutcome)
	r.ids[bus.EventRuleDeactivated] = events.On(bus.EventRuleDeactivated, r.onDeactivated)
	r.ids[bus.EventQuotaExhausted] = events.On(bus.EventQuotaExhausted, func(bus.Event) { QuotaExhausted.Inc() })
	return r
}

// Detach removes every handler added by Attach.
func (r *Recorder) Detach() {
	for eventType, id := range r.ids {
		r.events.Off(eventType, id)
	}
	r.ids = map[string]string{}
}

func (r *Recorder) onMessage(ev bus.Event) {
	t, _ := ev.Payload["type"].(string)
	MessagesReceived.WithLabelValues(t).Inc()
}

func (r *Recorder) onOutcome(ev bus.Event) {
	o := ev.Outcome
	if o == nil {
		return
	}
	status := string(o.Status)
	ForwardOutcomes.WithLabelValues(status, o.Reason).Inc()
	ForwardDuration.WithLabelValues(status).Observe(o.Duration.Seconds())
	SendAttempts.Add(float64(o.Attempts))
	if o.OmittedCount > 0 {
		AttachmentsOmitted.Add(float64(o.OmittedCount))
		AttachmentBytesOmitted.Add(float64(o.OmittedBytes))
	}
}

func (r *Recorder) onDeactivated(ev bus.Event) {
	reason, _ := ev.Payload["reason"].(string)
	RulesDeactivated.WithLabelValues(reason).Inc()
}
