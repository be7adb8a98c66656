package domain

import "fmt"

const (
	MiB = 1 << 20

	DefaultAttachmentCeiling  int64 = 10 * MiB
	ElevatedAttachmentCeiling int64 = 50 * MiB
	ElevatedTier                    = 2
)

// CapacityLimits maps a guild's boost tier to its cumulative attachment ceiling.
type CapacityLimits struct {
	DefaultCeiling  int64
	ElevatedCeiling int64
	ElevatedTier    int
}

// DefaultCapacityLimits returns 10 MiB below tier 2 and 50 MiB from tier 2 upwards.
func DefaultCapacityLimits() CapacityLimits {
	return CapacityLimits{
		DefaultCeiling:  DefaultAttachmentCeiling,
		ElevatedCeiling: ElevatedAttachmentCeiling,
		ElevatedTier:    ElevatedTier,
	}
}

// Validate enforces that a higher tier never yields a lower ceiling.
func (l CapacityLimits) Validate() error {
	if l.DefaultCeiling <= 0 {
		return fmt.Errorf("default ceiling must be positive")
	}
	if l.ElevatedCeiling < l.DefaultCeiling {
		return fmt.Errorf("elevated ceiling %d is below default ceiling %d", l.ElevatedCeiling, l.DefaultCeiling)
	}
	if l.ElevatedTier < 1 {
		return fmt.Errorf("elevated tier must be >= 1")
	}
	return nil
}

// Ceiling returns the byte ceiling for tier.
func (l CapacityLimits) Ceiling(tier int) int64 {
	if tier >= l.ElevatedTier {
		return l.ElevatedCeiling
	}
	return l.DefaultCeiling
}

// GuildCapacityProfile is the capacity snapshot of one destination guild.
type GuildCapacityProfile struct {
	GuildID           string
	Tier              int
	AttachmentCeiling int64
}

// NewCapacityProfile derives the attachment ceiling for guildID at tier.
func NewCapacityProfile(guildID string, tier int, limits CapacityLimits) GuildCapacityProfile {
	return GuildCapacityProfile{
		GuildID:           guildID,
		Tier:              tier,
		AttachmentCeiling: limits.Ceiling(tier),
	}
}
