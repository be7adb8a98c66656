package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/domain"

	"github.com/oklog/ulid/v2"
)

// Timestamps are stored as fixed-width UTC text so they compare lexically.
const logTimeLayout = "2006-01-02T15:04:05.000Z"

// LogEntry is one persisted dispatch outcome.
type LogEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	domain.DispatchOutcome
}

// LogOutcome appends o to the forward log.
func (s *SQLiteStore) LogOutcome(ctx context.Context, o domain.DispatchOutcome) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forward_log (id, rule_id, guild_id, message_id, source_channel_id, destination_channel_id,
			status, reason, attempts, omitted_count, omitted_bytes, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), o.RuleID, o.GuildID, o.MessageID, o.SourceChannelID, o.DestinationChannelID,
		string(o.Status), o.Reason, o.Attempts, o.OmittedCount, o.OmittedBytes, o.Err, o.Duration.Milliseconds(), now.Format(logTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert forward log: %w", err)
	}
	return nil
}

// RecentLog returns up to limit entries, newest first. An empty guildID lists every guild.
func (s *SQLiteStore) RecentLog(ctx context.Context, guildID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, rule_id, guild_id, message_id, source_channel_id, destination_channel_id,
		status, reason, attempts, omitted_count, omitted_bytes, error, duration_ms, created_at
		FROM forward_log`
	var args []any
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query forward log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e          LogEntry
			status     string
			durationMs int64
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.RuleID, &e.GuildID, &e.MessageID, &e.SourceChannelID, &e.DestinationChannelID,
			&status, &e.Reason, &e.Attempts, &e.OmittedCount, &e.OmittedBytes, &e.Err, &durationMs, &createdAt); err != nil {
			return nil, err
		}
		e.Status = domain.DispatchStatus(status)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.CreatedAt, _ = time.Parse(logTimeLayout, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes log entries and usage counters older than retention.
func (s *SQLiteStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM forward_log WHERE created_at < ?`, cutoff.Format(logTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune forward log: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE day < ?`, cutoff.Format(dayLayout)); err != nil {
		return n, fmt.Errorf("prune daily usage: %w", err)
	}
	return n, nil
}

// AttachLogWriter persists every forward.outcome event. It returns the handler ID.
func (s *SQLiteStore) AttachLogWriter(events *bus.EventBus, logger *slog.Logger) string {
	return events.On(bus.EventForwardOutcome, func(ev bus.Event) {
		if ev.Outcome == nil {
			return
		}
		if err := s.LogOutcome(context.Background(), *ev.Outcome); err != nil {
			logger.Error("failed to write forward log", "rule_id", ev.Outcome.RuleID, "err", err)
		}
	})
}
