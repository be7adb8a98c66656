package forward

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relaybot/internal/domain"
)

const DefaultSendTimeout = 15 * time.Second

type DispatcherConfig struct {
	Sender      domain.Sender
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher delivers one budgeted payload and classifies the result.
type Dispatcher struct {
	sender  domain.Sender
	timeout time.Duration
	logger  *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{sender: cfg.Sender, timeout: cfg.SendTimeout, logger: cfg.Logger}
}

// Dispatch sends payload with the budget's selected attachments.
//
// A size rejection triggers exactly one more send with no attachments; its
// success is reported as delivered_degraded, or as delivered when no
// attachment was dropped. Every other error, including a
// timeout, fails the destination without a retry. Dispatch makes at most two
// send calls and does not deduplicate.
func (d *Dispatcher) Dispatch(ctx context.Context, payload domain.OutboundPayload, budget Budget) (out domain.DispatchOutcome) {
	start := time.Now()
	out = domain.DispatchOutcome{
		RuleID:               payload.RuleID,
		DestinationChannelID: payload.DestinationChannelID,
		OmittedCount:         len(budget.Omitted),
		OmittedBytes:         budget.OmittedBytes,
	}
	defer func() { out.Duration = time.Since(start) }()

	payload.Attachments = budget.Selected
	err := d.send(ctx, payload)
	out.Attempts = 1

	switch {
	case err == nil:
		out.Status = domain.StatusDelivered
		if budget.Degraded() {
			out.Status = domain.StatusDeliveredDegraded
			out.Reason = domain.ReasonOverBudget
		}
		return out

	case errors.Is(err, context.DeadlineExceeded):
		return failed(out, domain.ReasonTimeout, err)

	case errors.Is(err, domain.ErrPayloadTooLarge):
		d.logger.Warn("payload rejected as too large, retrying without attachments",
			"rule_id", payload.RuleID,
			"destination", payload.DestinationChannelID,
			"attachments", len(budget.Selected),
		)
		err = d.send(ctx, payload.WithoutAttachments())
		out.Attempts = 2
		if err != nil {
			return failed(out, classify(err), err)
		}
		out.Reason = domain.ReasonPayloadTooLarge
		out.OmittedCount += len(budget.Selected)
		out.OmittedBytes += budget.SelectedBytes
		out.Status = domain.StatusDeliveredDegraded
		if out.OmittedCount == 0 {
			// No attachment was dropped, so the destination got the whole message.
			out.Status = domain.StatusDelivered
		}
		return out

	default:
		return failed(out, classify(err), err)
	}
}

func (d *Dispatcher) send(ctx context.Context, payload domain.OutboundPayload) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.sender.Send(sendCtx, payload)
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		// Transports may surface the deadline as an unrelated network error.
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}

func failed(out domain.DispatchOutcome, reason string, err error) domain.DispatchOutcome {
	out.Status = domain.StatusFailed
	out.Reason = reason
	out.Err = err.Error()
	return out
}

// classify maps a send error to an outcome reason.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.Is(err, context.Canceled):
		return domain.ReasonCanceled
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return domain.ReasonPayloadTooLarge
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.ReasonPermissionDenied
	case errors.Is(err, domain.ErrDestinationGone):
		return domain.ReasonDestinationRemoved
	case errors.Is(err, domain.ErrRateLimited):
		return domain.ReasonRateLimited
	default:
		return domain.ReasonTransportError
	}
}

// Permanent reports whether reason indicates the destination will keep failing
// until someone fixes the rule or its permissions.
func Permanent(reason string) bool {
	return reason == domain.ReasonPermissionDenied || reason == domain.ReasonDestinationRemoved
}
