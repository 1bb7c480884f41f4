// Package config loads the settings shared by covenantctl and
// covenant-oracled from a YAML file and COVENANTS_* environment variables.
//
// Example:
//
//	network: testnet
//	data_dir: /var/lib/covenants
//	log_level: debug
//	fee: 500
//	oracle:
//	  backend: esplora
//	  options:
//	    esplora-url: https://blockstream.info/testnet/api
//	    esplora-rps: "2"
//
// Environment variables override the file: COVENANTS_NETWORK,
// COVENANTS_DATA_DIR, COVENANTS_KEY_DIR, COVENANTS_LOG_LEVEL,
// COVENANTS_LOG_FORMAT, COVENANTS_FEE, COVENANTS_MIRRORS (comma separated),
// COVENANTS_ORACLE_BACKEND, and COVENANTS_ORACLE_OPT_<NAME> for a backend
// option, where ESPLORA_URL names the option esplora-url.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"gopkg.in/yaml.v3"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/internal/logging"
)

const (
	envPrefix       = "COVENANTS_"
	envOraclePrefix = envPrefix + "ORACLE_OPT_"

	DefaultFee int64 = 500
	// MaxFee guards against a fee entered in coins instead of satoshis.
	MaxFee int64 = 10_000_000
)

type Config struct {
	Network   string   `yaml:"network"`
	DataDir   string   `yaml:"data_dir"`
	KeyDir    string   `yaml:"key_dir"`
	LogLevel  string   `yaml:"log_level"`
	LogFormat string   `yaml:"log_format"`
	Fee       int64    `yaml:"fee"`
	// Mirrors are extra record-store replicas: a directory, "ipfs",
	// "ipfs:<repo>" or "grpc://host:port".
	Mirrors []string `yaml:"mirrors"`
	Oracle    Oracle   `yaml:"oracle"`
}

// Oracle selects a chain oracle backend. Options are keyed by the backend's
// flag names.
type Oracle struct {
	Backend string            `yaml:"backend"`
	Options map[string]string `yaml:"options"`
}

// Default returns the built-in settings.
func Default() Config {
	dataDir := ".covenants"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".covenants")
	}
	return Config{
		Network:   "regtest",
		DataDir:   dataDir,
		LogLevel:  "info",
		LogFormat: string(logging.FormatText),
		Fee:       DefaultFee,
		Oracle:    Oracle{Backend: "esplora", Options: map[string]string{}},
	}
}

// Load reads path (if non-empty) over the defaults, applies overrides from
// environ (in os.Environ form), and validates the result.
func Load(path string, environ []string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := decode(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(environ); err != nil {
		return Config{}, err
	}
	if cfg.KeyDir == "" {
		cfg.KeyDir = filepath.Join(cfg.DataDir, "keys")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if cfg.Oracle.Options == nil {
		cfg.Oracle.Options = map[string]string{}
	}
	return nil
}

func (c *Config) applyEnv(environ []string) error {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}
		if strings.HasPrefix(k, envOraclePrefix) {
			opt := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(k, envOraclePrefix), "_", "-"))
			if opt == "" {
				return fmt.Errorf("config: %s names no option", k)
			}
			c.Oracle.Options[opt] = v
			continue
		}
		switch strings.TrimPrefix(k, envPrefix) {
		case "NETWORK":
			c.Network = v
		case "DATA_DIR":
			c.DataDir = v
		case "KEY_DIR":
			c.KeyDir = v
		case "LOG_LEVEL":
			c.LogLevel = v
		case "LOG_FORMAT":
			c.LogFormat = v
		case "FEE":
			fee, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("config: %s: %w", k, err)
			}
			c.Fee = fee
		case "MIRRORS":
			c.Mirrors = nil
			for _, m := range strings.Split(v, ",") {
				if m = strings.TrimSpace(m); m != "" {
					c.Mirrors = append(c.Mirrors, m)
				}
			}
		case "ORACLE_BACKEND":
			c.Oracle.Backend = v
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := chain.Params(c.Network); err != nil {
		return fmt.Errorf("config: network: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	switch logging.Format(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Fee <= 0 || c.Fee > MaxFee {
		return fmt.Errorf("config: fee must be in (0, %d] satoshis, got %d", MaxFee, c.Fee)
	}
	if strings.TrimSpace(c.Oracle.Backend) == "" {
		return errors.New("config: oracle.backend is required")
	}
	for _, m := range c.Mirrors {
		if filepath.Clean(m) == filepath.Clean(c.DataDir) {
			return fmt.Errorf("config: mirror %s is the data directory", m)
		}
	}
	return nil
}

// Params returns the chain parameters of the configured network.
func (c Config) Params() *chaincfg.Params {
	p, err := chain.Params(c.Network)
	if err != nil {
		return &chaincfg.RegressionNetParams
	}
	return p
}

// StoreDir is where deployment records live.
func (c Config) StoreDir() string { return filepath.Join(c.DataDir, "store") }
