package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	DataDir         string `toml:"DataDir"`
	GenesisFile     string `toml:"GenesisFile"`
	Environment     string `toml:"Environment"`
	LogFile         string `toml:"LogFile"`
	BlockIntervalMs uint64 `toml:"BlockIntervalMs"`

	RPCReadHeaderTimeout int `toml:"RPCReadHeaderTimeout"`
	RPCReadTimeout       int `toml:"RPCReadTimeout"`
	RPCWriteTimeout      int `toml:"RPCWriteTimeout"`
	RPCIdleTimeout       int `toml:"RPCIdleTimeout"`

	Telemetry Telemetry `toml:"telemetry"`
	RateLimit RateLimit `toml:"rate_limit"`
	Protocol  Protocol  `toml:"protocol"`
	Global    Global    `toml:"global"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the settings of a local single-node setup.
func Default() *Config {
	return &Config{
		ListenAddress:        ":8080",
		DataDir:              "./beanstalk-data",
		GenesisFile:          "genesis.yaml",
		Environment:          "local",
		BlockIntervalMs:      12_000,
		RPCReadHeaderTimeout: 5,
		RPCReadTimeout:       15,
		RPCWriteTimeout:      15,
		RPCIdleTimeout:       60,
		RateLimit:            RateLimit{RequestsPerSecond: 20, Burst: 40},
		Telemetry:            Telemetry{Endpoint: "localhost:4318", Insecure: true},
		Protocol: Protocol{
			BeanToken:      "0x000000000000000000000000000000000000bea0",
			ReserveAccount: "0x0000000000000000000000000000000000000f1e",
			SiloAccount:    "0x0000000000000000000000000000000000005110",
			KeeperAccount:  "0x000000000000000000000000000000000000cafe",
		},
	}
}

// BlockInterval is the block ticker period.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMs) * time.Millisecond
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func (c *Config) ReadHeaderTimeout() time.Duration { return seconds(c.RPCReadHeaderTimeout) }
func (c *Config) ReadTimeout() time.Duration       { return seconds(c.RPCReadTimeout) }
func (c *Config) WriteTimeout() time.Duration      { return seconds(c.RPCWriteTimeout) }
func (c *Config) IdleTimeout() time.Duration       { return seconds(c.RPCIdleTimeout) }

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
