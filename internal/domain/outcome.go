package domain

import "time"

// DispatchStatus is the terminal state of one destination's delivery.
type DispatchStatus string

const (
	StatusDelivered         DispatchStatus = "delivered"
	StatusDeliveredDegraded DispatchStatus = "delivered_degraded"
	StatusFailed            DispatchStatus = "failed"
)

// Reason codes attached to outcomes.
const (
	ReasonOverBudget         = "attachments_over_budget"
	ReasonPayloadTooLarge    = "payload_too_large"
	ReasonTimeout            = "timeout"
	ReasonRateLimited        = "rate_limited"
	ReasonPermissionDenied   = "permission_denied"
	ReasonDestinationRemoved = "destination_removed"
	ReasonTransportError     = "transport_error"
	ReasonQuotaExceeded      = "quota_exceeded"
	ReasonCanceled           = "canceled"
)

// DispatchOutcome reports what happened to one matched destination.
type DispatchOutcome struct {
	RuleID               string         `json:"rule_id"`
	GuildID              string         `json:"guild_id"`
	MessageID            string         `json:"message_id"`
	SourceChannelID      string         `json:"source_channel_id"`
	DestinationChannelID string         `json:"destination_channel_id"`
	Status               DispatchStatus `json:"status"`
	Reason               string         `json:"reason,omitempty"`
	Attempts             int            `json:"attempts"`
	OmittedCount         int            `json:"omitted_count"`
	OmittedBytes         int64          `json:"omitted_bytes"`
	Err                  string         `json:"error,omitempty"`
	Duration             time.Duration  `json:"duration"`
}

// Delivered reports whether text and embeds reached the destination.
func (o DispatchOutcome) Delivered() bool {
	return o.Status == StatusDelivered || o.Status == StatusDeliveredDegraded
}
