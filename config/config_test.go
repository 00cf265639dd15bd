package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"beanstalk/native/sun"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.ListenAddress != ":8080" || cfg.BlockIntervalMs != 12_000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.DataDir != cfg.DataDir || reloaded.Protocol.BeanToken != cfg.Protocol.BeanToken {
		t.Fatalf("reloaded config differs: %+v", reloaded)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
GenesisFile = "genesis.yaml"
Environment = "test"
LogFile = "./logs/beanstalkd.log"
BlockIntervalMs = 2000
RPCReadTimeout = 20

[telemetry]
Endpoint = "collector:4318"
Headers = "x-key=abc"
Traces = true

[rate_limit]
RequestsPerSecond = 5.5
Burst = 11

[protocol]
BeanToken = "0x000000000000000000000000000000000000bea0"
ReserveAccount = "0x0000000000000000000000000000000000000f1e"
SiloAccount = "0x0000000000000000000000000000000000005110"
KeeperAccount = "0x000000000000000000000000000000000000cafe"
MinBeanReserve = "1000"
BaseReward = "7000000"
MaxLateBlocks = 10

[global.pauses]
Convert = true
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.Environment != "test" || cfg.LogFile != "./logs/beanstalkd.log" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if cfg.BlockInterval().Seconds() != 2 {
		t.Fatalf("unexpected block interval %s", cfg.BlockInterval())
	}
	if cfg.ReadTimeout().Seconds() != 20 || cfg.WriteTimeout().Seconds() != 15 {
		t.Fatalf("unexpected rpc timeouts: read %s write %s", cfg.ReadTimeout(), cfg.WriteTimeout())
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if cfg.RateLimit.RequestsPerSecond != 5.5 || cfg.RateLimit.Burst != 11 {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	pauses := cfg.Global.Pauses.View()
	if !pauses.IsPaused("convert") || pauses.IsPaused("field") {
		t.Fatalf("unexpected pauses: %+v", pauses)
	}

	resolved, err := cfg.Protocol.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Bean != common.HexToAddress("0xbea0") {
		t.Fatalf("unexpected bean token %s", resolved.Bean.Hex())
	}
	if resolved.MinBeanReserve.Uint64() != 1000 {
		t.Fatalf("unexpected min reserve %s", resolved.MinBeanReserve)
	}
	if resolved.Params.BaseReward.Uint64() != 7_000_000 || resolved.Params.MaxLateBlocks != 10 {
		t.Fatalf("overrides not applied: %+v", resolved.Params)
	}
	defaults := sun.DefaultParams()
	if resolved.Params.BlockTime != defaults.BlockTime || !resolved.Params.MinSoilIssuance.Eq(defaults.MinSoilIssuance) {
		t.Fatalf("defaults not kept: %+v", resolved.Params)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \":8080\"\nValidatorKey = \"abc\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"empty data dir":   func(c *Config) { c.DataDir = " " },
		"empty listen":     func(c *Config) { c.ListenAddress = "" },
		"fast blocks":      func(c *Config) { c.BlockIntervalMs = 10 },
		"negative rate":    func(c *Config) { c.RateLimit.RequestsPerSecond = -1 },
		"zero burst":       func(c *Config) { c.RateLimit.Burst = 0 },
		"no otel endpoint": func(c *Config) { c.Telemetry.Metrics = true; c.Telemetry.Endpoint = "" },
		"no keeper":        func(c *Config) { c.Protocol.KeeperAccount = "" },
		"bad bean":         func(c *Config) { c.Protocol.BeanToken = "bean" },
		"shared account":   func(c *Config) { c.Protocol.SiloAccount = c.Protocol.ReserveAccount },
		"bad reserve min":  func(c *Config) { c.Protocol.MinBeanReserve = "-5" },
		"bad reward":       func(c *Config) { c.Protocol.BaseReward = "lots" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := ValidateConfig(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
