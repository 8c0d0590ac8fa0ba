package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// secretKeys lists the dot-separated keys whose values should be masked.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"telegram.token": true,
}

// IsSecretKey returns true if the given dot-separated key is a secret.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into a flat map with dot-separated keys.
// For example, {"llm": {"provider": "openai"}} becomes {"llm.provider": "openai"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		default:
			out[key] = v
		}
	}
}

// Unflatten converts a flat map with dot-separated keys back into a nested map.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = v
			} else {
				next, ok := current[part]
				if !ok {
					next = make(map[string]any)
				}
				m, ok := next.(map[string]any)
				if !ok {
					m = make(map[string]any)
				}
				current[part] = m
				current = m
			}
		}
	}
	return out
}

// ListValues returns the config as a flat dot-keyed map, masking secrets
// when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	flat, err := flatConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !mask {
		return flat, nil
	}
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if secretKeys[k] {
			s, _ := v.(string)
			if len(s) > 4 {
				out[k] = "***" + s[len(s)-4:]
			} else if s != "" {
				out[k] = "***" + s
			} else {
				out[k] = s
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// GetValue reads a single dot-keyed value from the config file at path.
func GetValue(path, key string) (any, error) {
	flat, err := flatFile(path)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue writes a single dot-keyed value into the config file at path,
// coercing bools and numbers from their string forms.
func SetValue(path, key, value string) error {
	flat, err := flatFile(path)
	if err != nil {
		return err
	}
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	flat[key] = coerce(value)

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func flatConfig(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return Flatten(nested), nil
}

func flatFile(path string) (map[string]any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return flatConfig(cfg)
}

func coerce(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
