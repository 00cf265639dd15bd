package config

import nativecommon "beanstalk/native/common"

// Pauses switches protocol modules off. A paused module rejects its mutating
// entry points; reads keep working.
type Pauses struct {
	Field   bool
	Sun     bool
	Convert bool
	Market  bool
	Silo    bool
	Well    bool
}

// View returns the pause set keyed by engine module name.
func (p Pauses) View() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{
		"field":   p.Field,
		"sun":     p.Sun,
		"convert": p.Convert,
		"market":  p.Market,
		"silo":    p.Silo,
		"well":    p.Well,
	}
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string
	Insecure bool
	// Headers is a comma-separated list of key=value pairs.
	Headers string
	Traces  bool
	Metrics bool
}

// RateLimit bounds the read API per client address.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// Protocol holds the system accounts and the controller overrides. Amounts
// are decimal strings; empty values keep the defaults.
type Protocol struct {
	BeanToken      string
	ReserveAccount string
	SiloAccount    string
	// KeeperAccount calls sunrise for the node and earns its incentive.
	KeeperAccount  string
	MinBeanReserve string

	BaseReward         string
	MinSoilIssuance    string
	FloodPercent       string
	BlockTime          uint64
	MaxLateBlocks      uint64
	MinTemperature     uint64
	DistributionPeriod uint64
}

// Global bundles the runtime switches enforced by ValidateConfig.
type Global struct {
	Pauses Pauses
}
