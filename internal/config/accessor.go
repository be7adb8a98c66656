package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// freeFormMaps are the paths whose keys are chosen by the user.
var freeFormMaps = map[string]bool{"telemetry.headers": true}

// toTree renders cfg as the generic JSON tree addressed by dot paths.
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "forward.defaultDailyLimit").
// Array elements are addressed by index ("discord.embedWaitSeconds.0").
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var current any = tree
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath assigns raw to the existing setting at path. String input is
// converted to the kind of the current value; lists take comma-separated items.
func SetByPath(cfg *Config, path string, raw any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := tree
	for i, key := range parts[:len(parts)-1] {
		child, ok := parent[key]
		if !ok && freeFormMaps[strings.Join(parts[:i+1], ".")] {
			child = map[string]any{}
			parent[key] = child
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = childMap
	}

	last := parts[len(parts)-1]
	current, exists := parent[last]
	if !exists && !freeFormMaps[strings.Join(parts[:len(parts)-1], ".")] {
		return fmt.Errorf("key not found: %s", path)
	}

	value, err := coerce(raw, current)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	parent[last] = value

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	updated := *cfg
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = updated
	return nil
}

// coerce converts string input to the JSON kind of current.
func coerce(raw, current any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	switch cur := current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("want a boolean, got %q", s)
		}
		return b, nil
	case float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("want a number, got %q", s)
		}
		return n, nil
	case []any:
		items := []any{}
		for _, item := range strings.Split(s, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			var elem any = ""
			if len(cur) > 0 {
				elem = cur[0]
			} else if _, err := strconv.ParseFloat(item, 64); err == nil {
				elem = 0.0
			}
			v, err := coerce(item, elem)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		return s, nil
	}
}

// Sanitize returns a copy of the config with the bot token, the Redis
// password and telemetry header values masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Discord.Token != "" {
		out.Discord.Token = maskString(out.Discord.Token)
	}
	if out.Quota.RedisURL != "" {
		out.Quota.RedisURL = maskURLPassword(out.Quota.RedisURL)
	}
	if len(cfg.Telemetry.Headers) > 0 {
		out.Telemetry.Headers = make(map[string]string, len(cfg.Telemetry.Headers))
		for k, v := range cfg.Telemetry.Headers {
			out.Telemetry.Headers[k] = maskString(v)
		}
	}
	out.Discord.EmbedWaitSeconds = append([]int(nil), cfg.Discord.EmbedWaitSeconds...)
	return &out
}

func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}

// maskString keeps the first and last four characters of long secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf setting keyed by its dot path.
func ListPaths(cfg *Config) map[string]any {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flatten("", tree, result)
	return result
}

func flatten(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, result)
			continue
		}
		result[path] = v
	}
}
