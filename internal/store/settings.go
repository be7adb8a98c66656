package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"relaybot/internal/domain"
)

// GuildSettings returns the stored settings, or domain.ErrNotFound when the
// guild has never been configured.
func (s *SQLiteStore) GuildSettings(ctx context.Context, guildID string) (domain.GuildSettings, error) {
	settings := domain.GuildSettings{GuildID: guildID}
	err := s.db.QueryRowContext(ctx,
		`SELECT forwarding_enabled, daily_limit FROM guild_settings WHERE guild_id = ?`, guildID,
	).Scan(&settings.ForwardingEnabled, &settings.DailyLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GuildSettings{}, fmt.Errorf("guild %s: %w", guildID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.GuildSettings{}, fmt.Errorf("query guild settings: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStore) SaveGuildSettings(ctx context.Context, settings domain.GuildSettings) error {
	if settings.GuildID == "" {
		return errors.New("guild id is required")
	}
	if settings.DailyLimit < 0 {
		return errors.New("daily limit must be >= 0")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, forwarding_enabled, daily_limit, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			forwarding_enabled = excluded.forwarding_enabled,
			daily_limit = excluded.daily_limit,
			updated_at = excluded.updated_at`,
		settings.GuildID, settings.ForwardingEnabled, settings.DailyLimit, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save guild settings: %w", err)
	}
	return nil
}
