package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"relaybot/internal/domain"
	"relaybot/internal/telemetry"

	"github.com/google/uuid"
)

const ruleColumns = `id, guild_id, name, source_channel_id, destination_channel_id, destination_guild_id,
	active, attribution, filters, format, created_at, updated_at`

// CreateRule validates and inserts rule, assigning an ID when empty.
func (s *SQLiteStore) CreateRule(ctx context.Context, rule domain.ForwardingRule) (domain.ForwardingRule, error) {
	ctx, end := telemetry.StartDBSpan(ctx, "rules.Create")
	defer end()

	rule = rule.WithDefaults()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := rule.Validate(); err != nil {
		return domain.ForwardingRule{}, err
	}
	filters, format, err := encodeRuleJSON(rule)
	if err != nil {
		return domain.ForwardingRule{}, err
	}
	now := s.now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.GuildID, rule.Name, rule.SourceChannelID, rule.DestinationChannelID, rule.DestinationGuildID,
		rule.Active, string(rule.Attribution), filters, format, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return domain.ForwardingRule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

// UpdateRule replaces the stored rule with the same ID.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule domain.ForwardingRule) error {
	ctx, end := telemetry.StartDBSpan(ctx, "rules.Update")
	defer end()

	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return err
	}
	filters, format, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET guild_id = ?, name = ?, source_channel_id = ?, destination_channel_id = ?,
			destination_guild_id = ?, active = ?, attribution = ?, filters = ?, format = ?, updated_at = ?
		 WHERE id = ?`,
		rule.GuildID, rule.Name, rule.SourceChannelID, rule.DestinationChannelID, rule.DestinationGuildID,
		rule.Active, string(rule.Attribution), filters, format, s.now().UTC(), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return expectOne(res, "rule "+rule.ID)
}

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (domain.ForwardingRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ForwardingRule{}, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	return rule, err
}

// ListRules returns the rules of guildID, or every rule when guildID is empty, in insertion order.
func (s *SQLiteStore) ListRules(ctx context.Context, guildID string) ([]domain.ForwardingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules`
	var args []any
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY seq`
	return s.queryRules(ctx, query, args...)
}

// RulesForSource returns the rules whose source is channelID, in insertion order.
// Inactive rules are included; the matcher skips them.
func (s *SQLiteStore) RulesForSource(ctx context.Context, channelID string) ([]domain.ForwardingRule, error) {
	ctx, end := telemetry.StartDBSpan(ctx, "rules.ForSource")
	defer end()
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE source_channel_id = ? ORDER BY seq`, channelID)
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectOne(res, "rule "+id)
}

// SetRuleActive toggles a rule. Enabling clears any deactivation reason.
func (s *SQLiteStore) SetRuleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET active = ?, deactivated_reason = '', updated_at = ? WHERE id = ?`,
		active, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	return expectOne(res, "rule "+id)
}

// DeactivateRule marks a rule inactive and records why.
func (s *SQLiteStore) DeactivateRule(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET active = 0, deactivated_reason = ?, updated_at = ? WHERE id = ?`,
		reason, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	return expectOne(res, "rule "+id)
}

// ImportRules inserts rules in one transaction. Rules whose ID already exists are replaced.
func (s *SQLiteStore) ImportRules(ctx context.Context, rules []domain.ForwardingRule) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for i, rule := range rules {
		rule = rule.WithDefaults()
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if err := rule.Validate(); err != nil {
			return 0, fmt.Errorf("rule %d: %w", i+1, err)
		}
		filters, format, err := encodeRuleJSON(rule)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				guild_id = excluded.guild_id, name = excluded.name,
				source_channel_id = excluded.source_channel_id,
				destination_channel_id = excluded.destination_channel_id,
				destination_guild_id = excluded.destination_guild_id,
				active = excluded.active, attribution = excluded.attribution,
				filters = excluded.filters, format = excluded.format, updated_at = excluded.updated_at`,
			rule.ID, rule.GuildID, rule.Name, rule.SourceChannelID, rule.DestinationChannelID, rule.DestinationGuildID,
			rule.Active, string(rule.Attribution), filters, format, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("import rule %s: %w", rule.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(rules), nil
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]domain.ForwardingRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.ForwardingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (domain.ForwardingRule, error) {
	var (
		rule            domain.ForwardingRule
		attribution     string
		filters, format string
	)
	err := row.Scan(&rule.ID, &rule.GuildID, &rule.Name, &rule.SourceChannelID, &rule.DestinationChannelID,
		&rule.DestinationGuildID, &rule.Active, &attribution, &filters, &format, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return domain.ForwardingRule{}, err
	}
	rule.Attribution = domain.Attribution(attribution)
	if err := json.Unmarshal([]byte(filters), &rule.Filters); err != nil {
		return domain.ForwardingRule{}, fmt.Errorf("rule %s: decode filters: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(format), &rule.Format); err != nil {
		return domain.ForwardingRule{}, fmt.Errorf("rule %s: decode format: %w", rule.ID, err)
	}
	return rule, nil
}

func encodeRuleJSON(rule domain.ForwardingRule) (string, string, error) {
	filters, err := json.Marshal(rule.Filters)
	if err != nil {
		return "", "", fmt.Errorf("encode filters: %w", err)
	}
	format, err := json.Marshal(rule.Format)
	if err != nil {
		return "", "", fmt.Errorf("encode format: %w", err)
	}
	return string(filters), string(format), nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
