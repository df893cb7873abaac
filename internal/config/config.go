//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package config loads the JSON scan configuration and domain lists.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Config is the scan configuration. Fields not present in the file
// keep their default values.
type Config struct {
	DNSServers     []string    `json:"dns_servers"`
	Protocol       string      `json:"protocol"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	RateLimit      float64     `json:"rate_limit"`
	BatchSize      int         `json:"batch_size"`
	CheckTLD       bool        `json:"check_tld"`
	Cache          CacheConfig `json:"cache"`
	OutputDir      string      `json:"output_dir"`
	LogLevel       string      `json:"log_level"`
}

// CacheConfig selects and configures the query cache backend.
type CacheConfig struct {
	// Backend is one of "none", "memory", or "redis".
	Backend string `json:"backend"`

	Redis RedisConfig `json:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Address    string `json:"address"`
	Password   string `json:"password"`
	Database   int    `json:"db"`
	KeyPrefix  string `json:"key_prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DNSServers:     []string{"8.8.8.8", "1.1.1.1", "208.67.222.222"},
		Protocol:       "udp",
		TimeoutSeconds: 5,
		RateLimit:      10,
		BatchSize:      5,
		CheckTLD:       true,
		Cache: CacheConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Address:    "127.0.0.1:6379",
				KeyPrefix:  "svcbscan:",
				TTLSeconds: 3600,
			},
		},
		OutputDir: "results",
		LogLevel:  "info",
	}
}

// Load reads a JSON configuration file on top of the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the scanner cannot
// run with. Flag overlays may empty fields Load already accepted, so
// callers revalidate after applying flags.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "udp", "tcp", "tls", "quic":
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if len(c.DNSServers) < 1 {
		return errors.New("at least one DNS server is required")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("timeout_seconds must be positive")
	}
	if c.RateLimit <= 0 {
		return errors.New("rate_limit must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	return nil
}

// DefaultDomains is the domain list used when no list file exists.
var DefaultDomains = []string{
	"google.com",
	"cloudflare.com",
	"github.com",
	"wikipedia.org",
	"mozilla.org",
}

// domainsFile matches the {"websites": [...]} layout.
type domainsFile struct {
	Websites []string `json:"websites"`
}

// LoadDomains reads a domain list from a JSON file. The file may be a
// bare JSON array of strings or an object with a "websites" key. When
// the file does not exist the built-in default list is returned.
func LoadDomains(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logrus.WithField("path", path).Warn("domains file not found, using default domain list")
		return DefaultDomains, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read domains file: %w", err)
	}

	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}

	var wrapped domainsFile
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Websites != nil {
		return wrapped.Websites, nil
	}
	return nil, fmt.Errorf("cannot parse domains file %s: expected a JSON array or a websites object", path)
}
