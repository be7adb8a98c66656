package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBus_EmitOutcome(t *testing.T) {
	eb := NewEventBus(testLogger())

	var got *domain.DispatchOutcome
	eb.On(EventForwardOutcome, func(e Event) {
		got = e.Outcome
	})

	eb.EmitOutcome("engine", domain.DispatchOutcome{RuleID: "r1", Status: domain.StatusDelivered})

	if got == nil {
		t.Fatal("expected outcome to be delivered to handler")
	}
	if got.RuleID != "r1" || got.Status != domain.StatusDelivered {
		t.Errorf("unexpected outcome: %+v", got)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventForwardOutcome})
	eb.Emit(Event{Type: EventRuleDeactivated})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_OffAfterSeveralHandlers(t *testing.T) {
	eb := NewEventBus(testLogger())

	var a, b int32
	idA := eb.On("x", func(e Event) { atomic.AddInt32(&a, 1) })
	eb.On("x", func(e Event) { atomic.AddInt32(&b, 1) })

	eb.Off("x", idA)
	// IDs stay unique after removal.
	idC := eb.On("x", func(e Event) {})
	if idC == idA {
		t.Fatalf("handler id reused: %s", idC)
	}

	eb.Emit(Event{Type: "x"})
	if atomic.LoadInt32(&a) != 0 || atomic.LoadInt32(&b) != 1 {
		t.Errorf("expected only second handler to run, got a=%d b=%d", a, b)
	}
}

func TestEventBus_ReplaySince(t *testing.T) {
	eb := NewEventBus(testLogger())

	eb.Emit(Event{Type: EventForwardOutcome, Timestamp: time.Now().Add(-time.Hour)})
	threshold := time.Now()
	eb.Emit(Event{Type: EventForwardOutcome})
	eb.Emit(Event{Type: EventQuotaExhausted})

	if n := len(eb.Replay(EventForwardOutcome, threshold)); n != 1 {
		t.Errorf("expected 1 outcome since threshold, got %d", n)
	}
	if n := len(eb.Replay("*", time.Time{})); n != 3 {
		t.Errorf("expected 3 total events, got %d", n)
	}
}

func TestEventBus_HistoryLimit(t *testing.T) {
	eb := NewEventBus(testLogger())
	eb.maxHistory = 5

	for i := 0; i < 10; i++ {
		eb.Emit(Event{Type: "test", Payload: map[string]any{"i": i}})
	}

	got := eb.Replay("*", time.Time{})
	if len(got) != 5 {
		t.Fatalf("expected 5, got %d", len(got))
	}
	if got[0].Payload["i"] != 5 {
		t.Errorf("oldest kept event = %v, want i=5", got[0].Payload)
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testLogger())

	var after int32
	eb.On("boom", func(e Event) { panic("handler failure") })
	eb.On("boom", func(e Event) { atomic.AddInt32(&after, 1) })

	eb.Emit(Event{Type: "boom"})

	if atomic.LoadInt32(&after) != 1 {
		t.Error("handler after a panicking one should still run")
	}
}
