package genesis

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"beanstalk/core"
	"beanstalk/core/state"
	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/storage"
	"beanstalk/storage/trie"
)

// Open resumes the protocol from the last committed head in db, or builds
// and commits the genesis state when db holds none.
func Open(spec *Spec, db storage.Database, opts core.Options) (*core.Protocol, core.Head, error) {
	if db == nil {
		return nil, core.Head{}, fmt.Errorf("database must not be nil")
	}
	head, ok := core.ReadHead(db)
	if !ok {
		return Build(spec, db, opts)
	}
	stateTrie, err := trie.NewTrie(db, head.Root.Bytes())
	if err != nil {
		return nil, core.Head{}, fmt.Errorf("open state trie at %s: %w", head.Root.Hex(), err)
	}
	p, err := core.NewProtocol(state.NewManager(stateTrie), opts)
	if err != nil {
		return nil, core.Head{}, err
	}
	return p, head, nil
}

// Build applies spec to an empty state and commits it as block 0.
func Build(spec *Spec, db storage.Database, opts core.Options) (*core.Protocol, core.Head, error) {
	if spec == nil {
		return nil, core.Head{}, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return nil, core.Head{}, fmt.Errorf("database must not be nil")
	}
	ts := spec.GenesisTimestamp()
	if ts.IsZero() {
		if err := spec.validate(); err != nil {
			return nil, core.Head{}, err
		}
		ts = spec.GenesisTimestamp()
	}

	stateTrie, err := trie.NewTrie(db, nil)
	if err != nil {
		return nil, core.Head{}, fmt.Errorf("init state trie: %w", err)
	}
	p, err := core.NewProtocol(state.NewManager(stateTrie), opts)
	if err != nil {
		return nil, core.Head{}, err
	}
	start := uint64(ts.Unix())
	p.SetBlock(0, start)
	if err := apply(p, spec, start); err != nil {
		return nil, core.Head{}, err
	}
	root, err := p.Commit()
	if err != nil {
		return nil, core.Head{}, fmt.Errorf("commit genesis: %w", err)
	}
	return p, core.Head{Height: 0, Root: root}, nil
}

func apply(p *core.Protocol, spec *Spec, start uint64) error {
	// 1) Season clock and starting weather
	err := p.InitSeason(
		season.Season{Start: start, Period: spec.Period, SunriseTime: start},
		season.Weather{Temp: spec.Temperature, ThisSowTime: season.NotSoldOut, LastSowTime: season.NotSoldOut},
		season.Gauges{CultivationFactor: spec.CultivationFactor},
	)
	if err != nil {
		return fmt.Errorf("season: %w", err)
	}

	// 2) Allocations (accounts sorted; tokens sorted)
	accounts := make([]string, 0, len(spec.Alloc))
	for account := range spec.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, accountStr := range accounts {
		account, err := ParseAccount(accountStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", accountStr, err)
		}
		tokens := make([]string, 0, len(spec.Alloc[accountStr]))
		for token := range spec.Alloc[accountStr] {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		for _, tokenStr := range tokens {
			token, err := ParseAccount(tokenStr)
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", accountStr, tokenStr, err)
			}
			amount, err := parseAmount(spec.Alloc[accountStr][tokenStr])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", accountStr, tokenStr, err)
			}
			if amount.IsZero() {
				continue
			}
			if err := p.Mint(token, account, amount, bank.External); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", accountStr, tokenStr, err)
			}
		}
	}

	// 3) Pools, seeded from their providers
	for i := range spec.Pools {
		pool := &spec.Pools[i]
		if err := p.CreatePool(pool.address, pool.nonBean, pool.ratio); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if pool.beans.IsZero() {
			continue
		}
		if _, err := p.AddLiquidity(pool.provider, pool.address, pool.beans, pool.nonBeans, nil, bank.External); err != nil {
			return fmt.Errorf("pools[%d]: seed liquidity: %w", i, err)
		}
	}

	// 4) Whitelist
	for i := range spec.Whitelist {
		w := &spec.Whitelist[i]
		weight := w.liquidityWeight
		if w.IsPool && weight.IsZero() {
			weight = nativecommon.Ratio.Clone()
		}
		entry := silo.WhitelistEntry{
			Token:                w.token,
			BDVPlugin:            w.BDVPlugin,
			StalkIssuedPerBdv:    w.stalkIssued,
			StalkEarnedPerSeason: w.StalkEarnedPerSeason,
			LiquidityWeight:      weight,
			IsPool:               w.IsPool,
		}
		if err := p.Whitelist(entry); err != nil {
			return fmt.Errorf("whitelist[%d]: %w", i, err)
		}
	}

	// 5) Fields and the active one
	for i := uint64(0); i < spec.Fields; i++ {
		if _, err := p.AddField(); err != nil {
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
	}
	if err := p.SetActiveField(spec.ActiveField, spec.Temperature); err != nil {
		return fmt.Errorf("activeField: %w", err)
	}
	if spec.soil != nil && !spec.soil.IsZero() {
		if err := p.SetSoil(new(uint256.Int).Set(spec.soil)); err != nil {
			return fmt.Errorf("soil: %w", err)
		}
	}

	// 6) Shipment routes
	if len(spec.Routes) == 0 {
		return nil
	}
	routes := make([]sun.Route, 0, len(spec.Routes))
	for _, r := range spec.Routes {
		routes = append(routes, sun.Route{Plan: r.Plan, Points: r.Points, FieldID: r.FieldID, Recipient: r.recipient})
	}
	if err := p.SetShipmentRoutes(routes); err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	return nil
}
