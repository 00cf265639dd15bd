package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"beanstalk/native/season"
)

// Spec is the genesis file: the season clock, the seeded balances, pools,
// whitelist, fields and shipment routes.
type Spec struct {
	GenesisTime string `yaml:"genesisTime"`
	// Period is the season length in seconds.
	Period            uint64                       `yaml:"period"`
	Temperature       uint64                       `yaml:"temperature"`
	CultivationFactor uint64                       `yaml:"cultivationFactor"`
	Soil              string                       `yaml:"soil,omitempty"`
	Alloc             map[string]map[string]string `yaml:"alloc"` // account -> token -> amount
	Pools             []PoolSpec                   `yaml:"pools"`
	Whitelist         []WhitelistSpec              `yaml:"whitelist"`
	Fields            uint64                       `yaml:"fields"`
	ActiveField       uint64                       `yaml:"activeField"`
	Routes            []RouteSpec                  `yaml:"routes"`

	genesisTimestamp time.Time
	soil             *uint256.Int
}

// PoolSpec creates a pool and optionally seeds it from Provider's balances.
type PoolSpec struct {
	Address      string `yaml:"address"`
	NonBeanToken string `yaml:"nonBeanToken"`
	// Ratio is beans per non-bean unit at peg, at 1e18.
	Ratio    string `yaml:"ratio"`
	Provider string `yaml:"provider,omitempty"`
	Beans    string `yaml:"beans,omitempty"`
	NonBeans string `yaml:"nonBeans,omitempty"`

	address, nonBean, provider common.Address
	ratio, beans, nonBeans     *uint256.Int
}

type WhitelistSpec struct {
	Token                string `yaml:"token"`
	BDVPlugin            string `yaml:"bdvPlugin"`
	StalkIssuedPerBdv    string `yaml:"stalkIssuedPerBdv,omitempty"`
	StalkEarnedPerSeason uint64 `yaml:"stalkEarnedPerSeason"`
	// LiquidityWeight scales the pool's liquidity, at 1e18.
	LiquidityWeight string `yaml:"liquidityWeight,omitempty"`
	IsPool          bool   `yaml:"isPool"`

	token                        common.Address
	stalkIssued, liquidityWeight *uint256.Int
}

type RouteSpec struct {
	Plan      string `yaml:"plan"`
	Points    uint64 `yaml:"points"`
	FieldID   uint64 `yaml:"fieldId"`
	Recipient string `yaml:"recipient,omitempty"`

	recipient common.Address
}

func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML genesis document. Unknown fields
// are rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts
	if s.Period == 0 {
		return fmt.Errorf("period must be greater than zero")
	}
	if s.Temperature == 0 {
		s.Temperature = season.OnePercentTemperature
	}
	if s.CultivationFactor == 0 {
		s.CultivationFactor = season.TemperaturePrecision
	}
	if s.soil, err = parseAmount(s.Soil); err != nil {
		return fmt.Errorf("soil: %w", err)
	}

	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		if _, err := ParseAccount(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		for token, amount := range s.Alloc[account] {
			if _, err := ParseAccount(token); err != nil {
				return fmt.Errorf("alloc[%q][%q]: token: %w", account, token, err)
			}
			if strings.TrimSpace(amount) == "" {
				return fmt.Errorf("alloc[%q][%q]: amount must be provided", account, token)
			}
			if _, err := parseAmount(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, token, err)
			}
		}
	}

	pools := make(map[common.Address]struct{}, len(s.Pools))
	for i := range s.Pools {
		if err := s.Pools[i].validate(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if _, dup := pools[s.Pools[i].address]; dup {
			return fmt.Errorf("pools[%d]: duplicate pool %s", i, s.Pools[i].Address)
		}
		pools[s.Pools[i].address] = struct{}{}
	}

	tokens := make(map[common.Address]struct{}, len(s.Whitelist))
	for i := range s.Whitelist {
		w := &s.Whitelist[i]
		if err := w.validate(); err != nil {
			return fmt.Errorf("whitelist[%d]: %w", i, err)
		}
		if _, dup := tokens[w.token]; dup {
			return fmt.Errorf("whitelist[%d]: duplicate token %s", i, w.Token)
		}
		if _, ok := pools[w.token]; w.IsPool && !ok {
			return fmt.Errorf("whitelist[%d]: pool token %s is not a genesis pool", i, w.Token)
		}
		tokens[w.token] = struct{}{}
	}

	if s.Fields == 0 {
		s.Fields = 1
	}
	if s.ActiveField >= s.Fields {
		return fmt.Errorf("activeField %d out of range of %d fields", s.ActiveField, s.Fields)
	}
	for i := range s.Routes {
		r := &s.Routes[i]
		if strings.TrimSpace(r.Plan) == "" {
			return fmt.Errorf("routes[%d]: plan must be provided", i)
		}
		if r.Points == 0 {
			return fmt.Errorf("routes[%d]: points must be greater than zero", i)
		}
		if r.FieldID >= s.Fields {
			return fmt.Errorf("routes[%d]: field %d out of range", i, r.FieldID)
		}
		if strings.TrimSpace(r.Recipient) != "" {
			if r.recipient, err = ParseAccount(r.Recipient); err != nil {
				return fmt.Errorf("routes[%d]: recipient: %w", i, err)
			}
		}
	}
	return nil
}

func (p *PoolSpec) validate() error {
	var err error
	if p.address, err = ParseAccount(p.Address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if p.nonBean, err = ParseAccount(p.NonBeanToken); err != nil {
		return fmt.Errorf("nonBeanToken: %w", err)
	}
	if p.ratio, err = parseAmount(p.Ratio); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	if p.ratio.IsZero() {
		return fmt.Errorf("ratio must be greater than zero")
	}
	if p.beans, err = parseAmount(p.Beans); err != nil {
		return fmt.Errorf("beans: %w", err)
	}
	if p.nonBeans, err = parseAmount(p.NonBeans); err != nil {
		return fmt.Errorf("nonBeans: %w", err)
	}
	seeded := !p.beans.IsZero() || !p.nonBeans.IsZero()
	if !seeded {
		return nil
	}
	if p.beans.IsZero() || p.nonBeans.IsZero() {
		return fmt.Errorf("initial liquidity needs both beans and nonBeans")
	}
	if p.provider, err = ParseAccount(p.Provider); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	return nil
}

func (w *WhitelistSpec) validate() error {
	var err error
	if w.token, err = ParseAccount(w.Token); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if strings.TrimSpace(w.BDVPlugin) == "" {
		return fmt.Errorf("bdvPlugin must be provided")
	}
	if w.stalkIssued, err = parseAmount(w.StalkIssuedPerBdv); err != nil {
		return fmt.Errorf("stalkIssuedPerBdv: %w", err)
	}
	if w.liquidityWeight, err = parseAmount(w.LiquidityWeight); err != nil {
		return fmt.Errorf("liquidityWeight: %w", err)
	}
	return nil
}

func parseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
