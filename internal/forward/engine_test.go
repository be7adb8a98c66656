package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/domain"
)

type engineFixture struct {
	store  *fakeStore
	sender *fakeSender
	reach  *fakeReach
	cap    *fakeCapacity
	quota  *fakeQuota
	events *bus.EventBus
	engine *Engine
}

func newFixture(t *testing.T, rules ...domain.ForwardingRule) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:  &fakeStore{rules: rules, settings: map[string]domain.GuildSettings{}},
		sender: &fakeSender{},
		reach:  &fakeReach{},
		cap:    &fakeCapacity{tiers: map[string]int{}},
		quota:  &fakeQuota{},
		events: bus.NewEventBus(testLogger()),
	}
	e, err := NewEngine(EngineConfig{
		Rules:             f.store,
		Capacity:          f.cap,
		Reach:             f.reach,
		Sender:            f.sender,
		Quota:             f.quota,
		Events:            f.events,
		SendTimeout:       time.Second,
		DefaultDailyLimit: DefaultDailyLimit,
		Logger:            testLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = e
	return f
}

func threeAttachments() domain.InboundMessage {
	return domain.InboundMessage{
		ID:          "m1",
		GuildID:     "g1",
		ChannelID:   "src",
		Author:      domain.Author{ID: "u1", Username: "alice"},
		Text:        "release notes",
		Attachments: []domain.Attachment{att("a", mb(4)), att("b", mb(4)), att("c", mb(5))},
	}
}

func TestEngine_NewRequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(EngineConfig{Sender: &fakeSender{}}); err == nil {
		t.Error("expected error without rule store")
	}
	if _, err := NewEngine(EngineConfig{Rules: &fakeStore{}}); err == nil {
		t.Error("expected error without sender")
	}
	bad := domain.CapacityLimits{DefaultCeiling: 10, ElevatedCeiling: 5, ElevatedTier: 2}
	if _, err := NewEngine(EngineConfig{Rules: &fakeStore{}, Sender: &fakeSender{}, Limits: bad}); err == nil {
		t.Error("expected error for non-monotonic limits")
	}
}

func TestEngine_BudgetsPerDestinationGuild(t *testing.T) {
	low := newRule("low", "src", "d-low")
	low.DestinationGuildID = "tier0"
	high := newRule("high", "src", "d-high")
	high.DestinationGuildID = "tier2"
	f := newFixture(t, low, high)
	f.cap.tiers["tier2"] = 2

	outcomes := f.engine.HandleInboundMessage(context.Background(), threeAttachments())

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].RuleID != "low" || outcomes[1].RuleID != "high" {
		t.Fatalf("outcomes not in rule order: %s, %s", outcomes[0].RuleID, outcomes[1].RuleID)
	}

	if o := outcomes[0]; o.Status != domain.StatusDeliveredDegraded || o.OmittedCount != 1 || o.OmittedBytes != mb(5) {
		t.Errorf("tier0: expected one 5 MiB omission, got %+v", o)
	}
	if got := f.sender.callsTo("d-low")[0].Attachments; got != 2 {
		t.Errorf("tier0: expected 2 attachments sent, got %d", got)
	}

	if o := outcomes[1]; o.Status != domain.StatusDelivered || o.OmittedCount != 0 {
		t.Errorf("tier2: expected full delivery, got %+v", o)
	}
	if got := f.sender.callsTo("d-high")[0].Attachments; got != 3 {
		t.Errorf("tier2: expected 3 attachments sent, got %d", got)
	}
}

func TestEngine_SizeRejectionScenario(t *testing.T) {
	f := newFixture(t, newRule("r", "src", "dst"))
	f.cap.tiers["g1"] = 2
	f.sender.script = func(_ string, n int, _ domain.OutboundPayload) error {
		if n == 0 {
			return domain.ErrPayloadTooLarge
		}
		return nil
	}
	msg := threeAttachments()
	msg.Embeds = []domain.Embed{{Title: "card"}}

	outcomes := f.engine.HandleInboundMessage(context.Background(), msg)

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Status != domain.StatusDeliveredDegraded || o.OmittedCount != 3 {
		t.Fatalf("expected degraded with 3 omitted, got %+v", o)
	}
	calls := f.sender.callsTo("dst")
	if len(calls) != 2 || calls[1].Attachments != 0 || calls[1].Embeds != 1 || calls[1].Text == "" {
		t.Fatalf("retry should carry text and embeds only: %+v", calls)
	}
}

func TestEngine_IndependentDestinations(t *testing.T) {
	f := newFixture(t, newRule("bad", "src", "d-bad"), newRule("slow", "src", "d-slow"), newRule("ok", "src", "d-ok"))
	f.sender.delay = map[string]time.Duration{"d-slow": 50 * time.Millisecond}
	f.sender.script = func(dst string, _ int, _ domain.OutboundPayload) error {
		if dst == "d-bad" {
			return domain.ErrPermissionDenied
		}
		return nil
	}

	outcomes := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{ID: "m", GuildID: "g1", ChannelID: "src", Text: "hi"})

	want := map[string]domain.DispatchStatus{
		"bad":  domain.StatusFailed,
		"slow": domain.StatusDelivered,
		"ok":   domain.StatusDelivered,
	}
	for _, o := range outcomes {
		if o.Status != want[o.RuleID] {
			t.Errorf("rule %s: expected %s, got %s (%s)", o.RuleID, want[o.RuleID], o.Status, o.Reason)
		}
	}
	if outcomes[0].Reason != domain.ReasonPermissionDenied {
		t.Errorf("expected permission_denied, got %s", outcomes[0].Reason)
	}
	// The fast destination must not wait for the slow one.
	if outcomes[2].Duration >= 50*time.Millisecond {
		t.Errorf("ok destination took %v, expected it not to wait for slow", outcomes[2].Duration)
	}
}

func TestEngine_DestinationsRunConcurrently(t *testing.T) {
	f := newFixture(t, newRule("a", "src", "d1"), newRule("b", "src", "d2"), newRule("c", "src", "d3"))
	f.sender.delay = map[string]time.Duration{"d1": 80 * time.Millisecond, "d2": 80 * time.Millisecond, "d3": 80 * time.Millisecond}

	start := time.Now()
	f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{GuildID: "g1", ChannelID: "src"})

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("destinations appear serialized: %v", elapsed)
	}
}

func TestEngine_StoreErrorYieldsNoOutcomes(t *testing.T) {
	f := newFixture(t)
	f.store.rulesErr = errors.New("database is locked")

	if outcomes := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{ChannelID: "src"}); len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
}

func TestEngine_NonMatchingAndUnreachableProduceNoOutcome(t *testing.T) {
	media := newRule("media", "src", "d1")
	media.Filters.AllowedTypes = []domain.MessageType{domain.TypeMedia}
	gone := newRule("gone", "src", "d2")
	f := newFixture(t, media, gone)
	f.reach.unreachable = map[string]bool{"d2": true}

	if outcomes := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{GuildID: "g1", ChannelID: "src", Text: "plain"}); len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
	if len(f.sender.calls) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestEngine_GuildSettings(t *testing.T) {
	f := newFixture(t, newRule("r1", "src", "d1"), newRule("r2", "src", "d2"), newRule("r3", "src", "d3"))
	msg := domain.InboundMessage{GuildID: "g1", ChannelID: "src", Text: "x"}

	f.store.settings["g1"] = domain.GuildSettings{GuildID: "g1", ForwardingEnabled: false, DailyLimit: 10}
	if outcomes := f.engine.HandleInboundMessage(context.Background(), msg); len(outcomes) != 0 {
		t.Fatalf("disabled guild should not forward, got %d outcomes", len(outcomes))
	}

	f.store.settings["g1"] = domain.GuildSettings{GuildID: "g1", ForwardingEnabled: true, DailyLimit: 2}
	outcomes := f.engine.HandleInboundMessage(context.Background(), msg)
	var delivered, quota int
	for _, o := range outcomes {
		switch {
		case o.Delivered():
			delivered++
		case o.Reason == domain.ReasonQuotaExceeded:
			quota++
		}
	}
	if delivered != 2 || quota != 1 {
		t.Fatalf("expected 2 delivered and 1 over quota, got %d/%d", delivered, quota)
	}
}

func TestEngine_FailedForwardsDoNotUseQuota(t *testing.T) {
	f := newFixture(t, newRule("r1", "src", "d1"), newRule("r2", "src", "d2"))
	f.store.settings["g1"] = domain.GuildSettings{GuildID: "g1", ForwardingEnabled: true, DailyLimit: 5}
	f.sender.script = func(dst string, _ int, _ domain.OutboundPayload) error {
		if dst == "d1" {
			return domain.ErrPermissionDenied
		}
		return nil
	}

	outcomes := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{GuildID: "g1", ChannelID: "src", Text: "x"})
	if len(outcomes) != 2 || outcomes[0].Status != domain.StatusFailed || !outcomes[1].Delivered() {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if n := f.quota.usage("g1"); n != 1 {
		t.Fatalf("quota usage = %d, want 1 (only the delivered forward)", n)
	}
}

func TestEngine_CapacityLookupFailureUsesDefaultCeiling(t *testing.T) {
	f := newFixture(t, newRule("r", "src", "dst"))
	f.cap.err = errors.New("guild not cached")

	outcomes := f.engine.HandleInboundMessage(context.Background(), threeAttachments())
	if outcomes[0].OmittedCount != 1 {
		t.Fatalf("expected default 10 MiB ceiling, got %+v", outcomes[0])
	}
}

func TestEngine_EmitsOutcomeEvents(t *testing.T) {
	f := newFixture(t, newRule("r1", "src", "d1"), newRule("r2", "src", "d2"))

	var mu sync.Mutex
	var seen []string
	f.events.On(bus.EventForwardOutcome, func(ev bus.Event) {
		mu.Lock()
		seen = append(seen, ev.Outcome.RuleID)
		mu.Unlock()
	})

	f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{ID: "m", GuildID: "g1", ChannelID: "src"})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 outcome events, got %v", seen)
	}
}

func TestEngine_OutcomeCarriesMessageContext(t *testing.T) {
	f := newFixture(t, newRule("r", "src", "dst"))
	o := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{ID: "m9", GuildID: "g1", ChannelID: "src"})[0]
	if o.MessageID != "m9" || o.GuildID != "g1" || o.SourceChannelID != "src" || o.DestinationChannelID != "dst" {
		t.Fatalf("outcome missing context: %+v", o)
	}
}

func TestEngine_PanicInSenderBecomesFailure(t *testing.T) {
	f := newFixture(t, newRule("boom", "src", "d1"), newRule("ok", "src", "d2"))
	f.sender.script = func(dst string, _ int, _ domain.OutboundPayload) error {
		if dst == "d1" {
			panic("nil map")
		}
		return nil
	}

	outcomes := f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{GuildID: "g1", ChannelID: "src"})
	if outcomes[0].Status != domain.StatusFailed || outcomes[1].Status != domain.StatusDelivered {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestEngine_RunDrainsBus(t *testing.T) {
	f := newFixture(t, newRule("r", "src", "dst"))
	inbound := bus.New(4, testLogger())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background(), inbound) }()

	inbound.Publish(domain.InboundMessage{ID: "m1", GuildID: "g1", ChannelID: "src"})
	inbound.Publish(domain.InboundMessage{ID: "m2", GuildID: "g1", ChannelID: "src"})
	inbound.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
	f.engine.Wait()

	if n := len(f.sender.callsTo("dst")); n != 2 {
		t.Fatalf("expected 2 sends, got %d", n)
	}
}

func TestEngine_RunHandlesBufferedMessagesBeforeReturning(t *testing.T) {
	f := newFixture(t, newRule("r", "src", "dst"))
	f.sender.delay = map[string]time.Duration{"dst": 5 * time.Millisecond}
	f.store.settings["g1"] = domain.GuildSettings{GuildID: "g1", ForwardingEnabled: true}

	const n = 200
	inbound := bus.New(n, testLogger())
	for i := range n {
		inbound.Publish(domain.InboundMessage{ID: fmt.Sprintf("m%d", i), GuildID: "g1", ChannelID: "src"})
	}
	inbound.Close()

	if err := f.engine.Run(context.Background(), inbound); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := len(f.sender.callsTo("dst")); got != n {
		t.Fatalf("sends when Run returned = %d, want %d", got, n)
	}
}

func TestDeactivateOnPermanentFailure(t *testing.T) {
	f := newFixture(t, newRule("gone", "src", "d1"), newRule("slow", "src", "d2"))
	f.sender.script = func(dst string, _ int, _ domain.OutboundPayload) error {
		if dst == "d1" {
			return domain.ErrDestinationGone
		}
		return domain.ErrRateLimited
	}
	DeactivateOnPermanentFailure(f.events, f.store, testLogger())

	f.engine.HandleInboundMessage(context.Background(), domain.InboundMessage{GuildID: "g1", ChannelID: "src"})

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.deactivate) != 1 || f.store.deactivate[0] != "gone" {
		t.Fatalf("expected only the removed destination's rule deactivated, got %v", f.store.deactivate)
	}
}
