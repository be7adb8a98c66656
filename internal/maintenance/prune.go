package maintenance

import (
	"context"
	"log/slog"
	"time"

	"relaybot/internal/metrics"
)

const PruneTaskID = "forward-log-prune"

// Pruner deletes forward log rows older than the retention window.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// PruneTask builds the retention task for the forward log.
func PruneTask(p Pruner, schedule string, retentionDays int, logger *slog.Logger) Task {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	return Task{
		ID:      PruneTaskID,
		Name:    "forward log retention",
		Expr:    schedule,
		Enabled: true,
		Run: func(ctx context.Context) error {
			n, err := p.Prune(ctx, retention)
			if err != nil {
				return err
			}
			metrics.LogPruned.Add(float64(n))
			logger.Info("forward log pruned", "rows", n, "retention_days", retentionDays)
			return nil
		},
	}
}
