package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error { *p(c) = parseBool(v); return nil },
	}
}

func durationField(p func(*Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", v, err)
			}
			*p(c) = d
			return nil
		},
	}
}

var fields = map[string]field{
	"api.base_url":          stringField(func(c *Config) *string { return &c.API.BaseURL }),
	"api.timeout":           durationField(func(c *Config) *time.Duration { return &c.API.Timeout }),
	"api.refresh_path":      stringField(func(c *Config) *string { return &c.API.RefreshPath }),
	"api.validate_requests": boolField(func(c *Config) *bool { return &c.API.ValidateRequests }),
	"store.backend":         stringField(func(c *Config) *string { return &c.Store.Backend }),
	"store.path":            stringField(func(c *Config) *string { return &c.Store.Path }),
	"store.read_policy":     stringField(func(c *Config) *string { return &c.Store.ReadPolicy }),
	"store.passphrase_env":  stringField(func(c *Config) *string { return &c.Store.PassphraseEnv }),
	"store.vault.address":   stringField(func(c *Config) *string { return &c.Store.Vault.Address }),
	"store.vault.mount":     stringField(func(c *Config) *string { return &c.Store.Vault.Mount }),
	"store.vault.prefix":    stringField(func(c *Config) *string { return &c.Store.Vault.Prefix }),
	"store.vault.namespace": stringField(func(c *Config) *string { return &c.Store.Vault.Namespace }),
	"log.level":             stringField(func(c *Config) *string { return &c.Log.Level }),
	"log.format":            stringField(func(c *Config) *string { return &c.Log.Format }),
	"log.file_dir":          stringField(func(c *Config) *string { return &c.Log.FileDir }),
	"log.max_age":           durationField(func(c *Config) *time.Duration { return &c.Log.MaxAge }),
	"device.auto_register":  boolField(func(c *Config) *bool { return &c.Device.AutoRegister }),
	"rewards.threshold": {
		get: func(c *Config) string { return strconv.Itoa(c.Rewards.Threshold) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer %q: %w", v, err)
			}
			c.Rewards.Threshold = n
			return nil
		},
	},
	"defaults.format":   stringField(func(c *Config) *string { return &c.Defaults.Format }),
	"defaults.no_color": boolField(func(c *Config) *bool { return &c.Defaults.NoColor }),
	"metrics.textfile":  stringField(func(c *Config) *string { return &c.Metrics.Textfile }),
}

// Keys lists every dotted key accepted by Get and Set.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at a dotted key such as "api.base_url".
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.get(c), nil
}

// Set assigns the value at a dotted key. The caller validates afterwards.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.set(c, value)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1"
}
