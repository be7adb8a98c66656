package forward

import (
	"math/rand"
	"testing"

	"relaybot/internal/domain"
)

func profile(tier int) domain.GuildCapacityProfile {
	return domain.NewCapacityProfile("g", tier, domain.DefaultCapacityLimits())
}

func TestBudget_Tier0DropsTail(t *testing.T) {
	atts := []domain.Attachment{att("a", mb(4)), att("b", mb(4)), att("c", mb(5))}

	b := NewBudgeter(0).Select(profile(0), atts)

	if len(b.Selected) != 2 || b.Selected[0].ID != "a" || b.Selected[1].ID != "b" {
		t.Fatalf("expected [a b], got %+v", b.Selected)
	}
	if len(b.Omitted) != 1 || b.Omitted[0].ID != "c" {
		t.Fatalf("expected [c] omitted, got %+v", b.Omitted)
	}
	if b.OmittedBytes != mb(5) || b.SelectedBytes != mb(8) {
		t.Errorf("unexpected byte totals: selected=%d omitted=%d", b.SelectedBytes, b.OmittedBytes)
	}
	if !b.Degraded() {
		t.Error("expected degraded budget")
	}
}

func TestBudget_Tier2KeepsAll(t *testing.T) {
	atts := []domain.Attachment{att("a", mb(4)), att("b", mb(4)), att("c", mb(5))}

	b := NewBudgeter(0).Select(profile(2), atts)

	if len(b.Selected) != 3 || len(b.Omitted) != 0 {
		t.Fatalf("expected all selected, got %d selected %d omitted", len(b.Selected), len(b.Omitted))
	}
	if b.Ceiling != 50*domain.MiB {
		t.Errorf("expected 50 MiB ceiling, got %d", b.Ceiling)
	}
}

func TestBudget_OversizeFirstAttachment(t *testing.T) {
	atts := []domain.Attachment{att("huge", mb(11)), att("tiny", 10)}

	b := NewBudgeter(0).Select(profile(0), atts)

	if len(b.Selected) != 0 {
		t.Fatalf("expected nothing selected, got %+v", b.Selected)
	}
	// No repacking of later, smaller files.
	if len(b.Omitted) != 2 {
		t.Fatalf("expected both omitted, got %+v", b.Omitted)
	}
}

func TestBudget_ExactCeilingFits(t *testing.T) {
	b := NewBudgeter(0).Select(profile(0), []domain.Attachment{att("a", mb(6)), att("b", mb(4))})
	if len(b.Selected) != 2 {
		t.Fatalf("total equal to ceiling should fit, got %d selected", len(b.Selected))
	}
}

func TestBudget_ClampedToTransportMaximum(t *testing.T) {
	b := NewBudgeter(mb(8)).Select(profile(3), []domain.Attachment{att("a", mb(6)), att("b", mb(4))})
	if b.Ceiling != mb(8) {
		t.Fatalf("expected ceiling clamped to 8 MiB, got %d", b.Ceiling)
	}
	if len(b.Selected) != 1 {
		t.Errorf("expected 1 selected, got %d", len(b.Selected))
	}
}

func TestBudget_EmptyInput(t *testing.T) {
	b := NewBudgeter(0).Select(profile(0), nil)
	if len(b.Selected) != 0 || len(b.Omitted) != 0 || b.Degraded() {
		t.Fatalf("expected empty budget, got %+v", b)
	}
}

func TestBudget_PrefixProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	budgeter := NewBudgeter(0)

	for i := 0; i < 500; i++ {
		n := rng.Intn(8)
		atts := make([]domain.Attachment, n)
		for j := range atts {
			atts[j] = att(string(rune('a'+j)), rng.Int63n(mb(12)))
		}
		p := profile(rng.Intn(4))
		b := budgeter.Select(p, atts)

		if len(b.Selected)+len(b.Omitted) != n {
			t.Fatalf("case %d: lost attachments", i)
		}
		var total int64
		for j, a := range b.Selected {
			if a.ID != atts[j].ID {
				t.Fatalf("case %d: selection is not a prefix", i)
			}
			total += a.Size
		}
		if total > p.AttachmentCeiling {
			t.Fatalf("case %d: selected %d exceeds ceiling %d", i, total, p.AttachmentCeiling)
		}
		if len(b.Omitted) > 0 && b.Omitted[0].Size <= p.AttachmentCeiling-total {
			t.Fatalf("case %d: first omitted attachment would have fit", i)
		}
	}
}

func TestBudget_DoesNotAliasInput(t *testing.T) {
	atts := []domain.Attachment{att("a", 1), att("b", 1)}
	b := NewBudgeter(0).Select(profile(0), atts)
	b.Selected[0].Filename = "changed"
	if atts[0].Filename != "a" {
		t.Fatal("budget shares backing array with input")
	}
}
