package forward

import "relaybot/internal/domain"

// Budget is the result of fitting a message's attachments into a destination's ceiling.
type Budget struct {
	Ceiling       int64
	Selected      []domain.Attachment
	Omitted       []domain.Attachment
	SelectedBytes int64
	OmittedBytes  int64
}

// Degraded reports whether any attachment was left out.
func (b Budget) Degraded() bool {
	return len(b.Omitted) > 0
}

// Budgeter selects the attachments that fit a guild's cumulative ceiling.
type Budgeter struct {
	maxRequestBytes int64
}

// NewBudgeter creates a Budgeter whose ceilings never exceed maxRequestBytes.
// A non-positive maxRequestBytes disables the clamp.
func NewBudgeter(maxRequestBytes int64) Budgeter {
	return Budgeter{maxRequestBytes: maxRequestBytes}
}

// Select returns the longest prefix of candidates whose total size stays within
// the profile's ceiling. The first attachment that does not fit and everything
// after it are omitted, so the forwarded order always matches the original.
func (b Budgeter) Select(profile domain.GuildCapacityProfile, candidates []domain.Attachment) Budget {
	ceiling := profile.AttachmentCeiling
	if b.maxRequestBytes > 0 && ceiling > b.maxRequestBytes {
		ceiling = b.maxRequestBytes
	}
	if ceiling < 0 {
		ceiling = 0
	}

	budget := Budget{Ceiling: ceiling}
	cut := len(candidates)
	var used int64
	for i, a := range candidates {
		if a.Size < 0 || used+a.Size > ceiling {
			cut = i
			break
		}
		used += a.Size
	}

	if cut > 0 {
		budget.Selected = append([]domain.Attachment(nil), candidates[:cut]...)
	}
	if cut < len(candidates) {
		budget.Omitted = append([]domain.Attachment(nil), candidates[cut:]...)
	}
	budget.SelectedBytes = used
	budget.OmittedBytes = domain.TotalSize(budget.Omitted)
	return budget
}
