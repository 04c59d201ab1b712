package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	defaultInterval       = time.Minute
	defaultStatePath      = "whitelist.db"
	defaultLogLevel       = "info"
	defaultLogEnv         = "prod"
	defaultMetricsAddress = ":9090"
	defaultDNSTimeout     = 5 * time.Second
	defaultHTTPTimeout    = 10 * time.Second
)

const envPrefix = "DNS_WHITELIST_SYNC_"

type Config struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart *bool         `yaml:"runOnStart"`
	DryRun     bool          `yaml:"dryRun"`
	StatePath  string        `yaml:"statePath"`
	Log        Log           `yaml:"log"`
	Metrics    Metrics       `yaml:"metrics"`
	DNS        DNS           `yaml:"dns"`
	Cloudflare Cloudflare    `yaml:"cloudflare"`
	Caddy      Caddy         `yaml:"caddy"`
	Entries    []Entry       `yaml:"entries"`
	Whitelists []Whitelist   `yaml:"whitelists"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Metrics struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

type DNS struct {
	Nameservers []string      `yaml:"nameservers"`
	Timeout     time.Duration `yaml:"timeout"`
	FlushCache  bool          `yaml:"flushCache"`
}

type Cloudflare struct {
	Token     string        `yaml:"token"`
	AccountID string        `yaml:"accountId"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Caddy struct {
	AdminURL string        `yaml:"adminUrl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Entry is a tracked endpoint as configured.
type Entry struct {
	Name string `yaml:"name"`
	FQDN string `yaml:"fqdn"`
}

// Whitelist is one configured export target. Only the fields relevant to its
// Type are read.
type Whitelist struct {
	Type       string   `yaml:"type"`
	Entries    []string `yaml:"entries"`
	Middleware string   `yaml:"middleware"`
	Path       string   `yaml:"path"`
	List       string   `yaml:"list"`
	Zone       string   `yaml:"zone"`
	Record     string   `yaml:"record"`
}

func (c *Config) ShouldRunOnStart() bool {
	return c.RunOnStart == nil || *c.RunOnStart
}

func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// EntryNames returns the configured entry names in order.
func (c *Config) EntryNames() []string {
	names := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		names = append(names, e.Name)
	}
	return names
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Env == "" {
		c.Log.Env = defaultLogEnv
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = defaultMetricsAddress
	}
	if c.DNS.Timeout == 0 {
		c.DNS.Timeout = defaultDNSTimeout
	}
	if c.Caddy.Timeout == 0 {
		c.Caddy.Timeout = defaultHTTPTimeout
	}
	if c.Cloudflare.Timeout == 0 {
		c.Cloudflare.Timeout = defaultHTTPTimeout
	}
}

// Override from environment if set
func (c *Config) applyEnv() {
	if interval := os.Getenv(envPrefix + "INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Interval = d
		} else {
			slog.Default().Warn("fail parse interval to duration from string", "interval", interval, "error", err)
		}
	}
	if runOnStart := os.Getenv(envPrefix + "RUN_ON_START"); runOnStart != "" {
		if b, err := strconv.ParseBool(runOnStart); err == nil {
			c.RunOnStart = &b
		} else {
			slog.Default().Warn("fail parse run on start to bool from string", "runOnStart", runOnStart)
		}
	}
	if dryRun := os.Getenv(envPrefix + "DRY_RUN"); dryRun != "" {
		if b, err := strconv.ParseBool(dryRun); err == nil {
			c.DryRun = b
		} else {
			slog.Default().Warn("fail parse dry run to bool from string", "dryRun", dryRun)
		}
	}
	if statePath := os.Getenv(envPrefix + "STATE_PATH"); statePath != "" {
		c.StatePath = statePath
	}
	if token := os.Getenv(envPrefix + "CLOUDFLARE_TOKEN"); token != "" {
		c.Cloudflare.Token = token
	}
	if account := os.Getenv(envPrefix + "CLOUDFLARE_ACCOUNT_ID"); account != "" {
		c.Cloudflare.AccountID = account
	}
	if caddyURL := os.Getenv(envPrefix + "CADDY_URL"); caddyURL != "" {
		c.Caddy.AdminURL = caddyURL
	}
	if nameservers := os.Getenv(envPrefix + "NAMESERVERS"); nameservers != "" {
		c.DNS.Nameservers = strings.Split(nameservers, ",")
	}
	if addr := os.Getenv(envPrefix + "METRICS_ADDRESS"); addr != "" {
		c.Metrics.Address = addr
	}
	if loglevel := os.Getenv(envPrefix + "LOG_LEVEL"); loglevel != "" {
		c.Log.Level = loglevel
	}
	if logenv := os.Getenv(envPrefix + "LOG_ENV"); logenv != "" {
		c.Log.Env = logenv
	}
}

// Validate reports every problem found rather than stopping at the first.
func (c *Config) Validate() error {
	var err error
	known := make(map[string]bool, len(c.Entries))
	for i, name := range c.EntryNames() {
		switch {
		case name == "":
			err = multierr.Append(err, fmt.Errorf("entries[%d]: name is required", i))
		case known[name]:
			err = multierr.Append(err, fmt.Errorf("entries[%d]: duplicate name %q", i, name))
		}
		if c.Entries[i].FQDN == "" {
			err = multierr.Append(err, fmt.Errorf("entries[%d]: fqdn is required", i))
		}
		known[name] = true
	}
	for i, w := range c.Whitelists {
		if w.Type == "" {
			err = multierr.Append(err, fmt.Errorf("whitelists[%d]: type is required", i))
		}
		for _, name := range w.Entries {
			if !known[name] {
				slog.Default().Warn("whitelist references unknown entry", "whitelist", i, "type", w.Type, "entry", name)
			}
		}
	}
	return err
}
