package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Reserve consumes one unit of guildID's allowance for the current UTC day.
// The increment is a single conditional upsert, so concurrent callers never
// exceed limit.
func (s *SQLiteStore) Reserve(ctx context.Context, guildID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	day := s.now().UTC().Format(dayLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_usage (guild_id, day, count) VALUES (?, ?, 1)
		 ON CONFLICT(guild_id, day) DO UPDATE SET count = count + 1 WHERE count < ?`,
		guildID, day, limit,
	)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release refunds one unit of today's allowance. The count never drops below zero.
func (s *SQLiteStore) Release(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE daily_usage SET count = count - 1 WHERE guild_id = ? AND day = ? AND count > 0`,
		guildID, s.now().UTC().Format(dayLayout),
	)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Usage returns how many forwards guildID made on day.
func (s *SQLiteStore) Usage(ctx context.Context, guildID string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE guild_id = ? AND day = ?`,
		guildID, day.UTC().Format(dayLayout),
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
