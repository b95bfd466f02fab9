package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration for the reconciler.
type Config struct {
	Version     int              `yaml:"version"`
	Store       StoreConfig      `yaml:"store"`
	Source      SourceChain      `yaml:"source"`
	Destination DestinationChain `yaml:"destination"`
	Relay       RelayConfig      `yaml:"relay"`
	Completion  CompletionConfig `yaml:"completion"`
	Notify      *NotifyConfig    `yaml:"notify,omitempty"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// SourceChain is the chain where transfers are initiated (and optionally
// completed) and whose logs drive the reconciliation loop.
type SourceChain struct {
	RPCURL         string `yaml:"rpc_url"`
	BridgeContract string `yaml:"bridge_contract"`
	LookbackBlocks uint64 `yaml:"lookback_blocks"`
	ChunkSize      uint64 `yaml:"chunk_size"`
}

// DestinationChain is the chain where the compensating payout is executed.
type DestinationChain struct {
	RPCURL         string `yaml:"rpc_url"`
	EscrowContract string `yaml:"escrow_contract"`
	PrivateKey     string `yaml:"private_key"`
	GasLimit       uint64 `yaml:"gas_limit"`
}

// Duration wraps time.Duration so YAML values like "5s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type RelayConfig struct {
	PollInterval        Duration `yaml:"poll_interval"`
	EventDelay          Duration `yaml:"event_delay"`
	PayoutAttempts      int      `yaml:"payout_attempts"`
	ConfirmationTimeout Duration `yaml:"confirmation_timeout"`
}

// CompletionConfig enables the second-phase complete() call on the source
// chain. When disabled the pipeline stops after the payout confirms.
type CompletionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SignerKey string `yaml:"signer_key"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Method     string `yaml:"method"`
}

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultEventDelay     = 500 * time.Millisecond
	DefaultPayoutAttempts = 3
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultChunkSize      = 500
	DefaultLookback       = 1000
	DefaultGasLimit       = 300_000
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Relay.PollInterval == 0 {
		c.Relay.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Relay.EventDelay == 0 {
		c.Relay.EventDelay = Duration(DefaultEventDelay)
	}
	if c.Relay.PayoutAttempts == 0 {
		c.Relay.PayoutAttempts = DefaultPayoutAttempts
	}
	if c.Relay.ConfirmationTimeout == 0 {
		c.Relay.ConfirmationTimeout = Duration(DefaultConfirmTimeout)
	}
	if c.Source.ChunkSize == 0 {
		c.Source.ChunkSize = DefaultChunkSize
	}
	if c.Source.LookbackBlocks == 0 {
		c.Source.LookbackBlocks = DefaultLookback
	}
	if c.Destination.GasLimit == 0 {
		c.Destination.GasLimit = DefaultGasLimit
	}
}

// Validate performs small, direct schema checks. A missing required value is
// a fatal startup error; the caller is expected to exit non-zero.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Destination.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if err := c.Completion.Validate(); err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if c.Notify != nil {
		if err := c.Notify.Validate(); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	if c.Relay.PayoutAttempts < 1 {
		return errors.New("relay.payout_attempts must be at least 1")
	}
	return nil
}

func (s *SourceChain) Validate() error {
	if s.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if !isHexAddress(s.BridgeContract) {
		return fmt.Errorf("bridge_contract %q is not a valid address", s.BridgeContract)
	}
	return nil
}

func (d *DestinationChain) Validate() error {
	if d.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if !isHexAddress(d.EscrowContract) {
		return fmt.Errorf("escrow_contract %q is not a valid address", d.EscrowContract)
	}
	if d.PrivateKey == "" {
		return errors.New("private_key is required")
	}
	return nil
}

func (c *CompletionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SignerKey == "" {
		return errors.New("signer_key is required when completion is enabled")
	}
	return nil
}

func (n *NotifyConfig) Validate() error {
	if n.WebhookURL == "" {
		return errors.New("webhook_url is required")
	}
	if n.Method == "" {
		n.Method = "POST"
	}
	return nil
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func isHexAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
