package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"relaybot/internal/domain"

	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML layout accepted by `rules import`.
type RuleFile struct {
	GuildID string                  `yaml:"guild_id"`
	Rules   []domain.ForwardingRule `yaml:"rules"`
}

// LoadRulesFile reads rules from a YAML file. A top-level guild_id applies to
// rules that do not set their own. Rules are active unless the file says otherwise.
func LoadRulesFile(path string) ([]domain.ForwardingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]domain.ForwardingRule, error) {
	var raw struct {
		GuildID string           `yaml:"guild_id"`
		Rules   []map[string]any `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	var errs []string
	for i := range file.Rules {
		r := &file.Rules[i]
		if r.GuildID == "" {
			r.GuildID = file.GuildID
		}
		if _, set := raw.Rules[i]["active"]; !set {
			r.Active = true
		}
		*r = r.WithDefaults()
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("rule %d: %v", i+1, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid rules file:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return file.Rules, nil
}

// LoadRulesDir loads every .yaml/.yml file in dir. Unreadable files are logged and skipped.
func LoadRulesDir(dir string, logger *slog.Logger) ([]domain.ForwardingRule, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("rules directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var rules []domain.ForwardingRule
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		loaded, err := LoadRulesFile(path)
		if err != nil {
			logger.Warn("cannot load rules file", "path", path, "err", err)
			continue
		}
		logger.Info("loaded rules file", "path", path, "rules", len(loaded))
		rules = append(rules, loaded...)
	}
	return rules, nil
}
