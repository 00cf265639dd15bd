package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "beanstalk/native/common"
	"beanstalk/native/silo"
)

// whitelistRecord is the stored form of a whitelist entry. The milestone
// stem is signed and kept as its two's complement.
type whitelistRecord struct {
	Token                common.Address
	BDVPlugin            string
	StalkIssuedPerBdv    *uint256.Int
	StalkEarnedPerSeason uint64
	MilestoneStem        uint64
	MilestoneSeason      uint32
	LiquidityWeight      *uint256.Int
	IsPool               bool
}

func newWhitelistRecord(e *silo.WhitelistEntry) *whitelistRecord {
	e = e.Clone()
	return &whitelistRecord{
		Token:                e.Token,
		BDVPlugin:            e.BDVPlugin,
		StalkIssuedPerBdv:    e.StalkIssuedPerBdv,
		StalkEarnedPerSeason: e.StalkEarnedPerSeason,
		MilestoneStem:        uint64(e.MilestoneStem),
		MilestoneSeason:      e.MilestoneSeason,
		LiquidityWeight:      e.LiquidityWeight,
		IsPool:               e.IsPool,
	}
}

func (r *whitelistRecord) entry() *silo.WhitelistEntry {
	e := &silo.WhitelistEntry{
		Token:                r.Token,
		BDVPlugin:            r.BDVPlugin,
		StalkIssuedPerBdv:    r.StalkIssuedPerBdv,
		StalkEarnedPerSeason: r.StalkEarnedPerSeason,
		MilestoneStem:        int64(r.MilestoneStem),
		MilestoneSeason:      r.MilestoneSeason,
		LiquidityWeight:      r.LiquidityWeight,
		IsPool:               r.IsPool,
	}
	return e.Clone()
}

func (m *Manager) WhitelistedTokens() ([]common.Address, error) {
	var tokens []common.Address
	if err := m.KVGetList(whitelistKey, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (m *Manager) GetWhitelistEntry(token common.Address) (*silo.WhitelistEntry, error) {
	rec, err := getRecord[whitelistRecord](m, WhitelistEntryKey(token))
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.entry(), nil
}

// PutWhitelistEntry stores entry, appending its token to the whitelist on
// first write.
func (m *Manager) PutWhitelistEntry(entry *silo.WhitelistEntry) error {
	existing, err := m.GetWhitelistEntry(entry.Token)
	if err != nil {
		return err
	}
	if existing == nil {
		tokens, err := m.WhitelistedTokens()
		if err != nil {
			return err
		}
		if err := m.KVPut(whitelistKey, append(tokens, entry.Token)); err != nil {
			return err
		}
	}
	return m.KVPut(WhitelistEntryKey(entry.Token), newWhitelistRecord(entry))
}

func (m *Manager) GetDeposit(account, token common.Address, stem int64) (*silo.Deposit, error) {
	return getRecord[silo.Deposit](m, DepositKey(account, token, stem))
}

func (m *Manager) PutDeposit(account, token common.Address, stem int64, d *silo.Deposit) error {
	return m.KVPut(DepositKey(account, token, stem), &silo.Deposit{
		Amount: nativecommon.OrZero(d.Amount),
		BDV:    nativecommon.OrZero(d.BDV),
	})
}

func (m *Manager) DeleteDeposit(account, token common.Address, stem int64) error {
	return m.KVDelete(DepositKey(account, token, stem))
}

// DepositStems is the account's ordered list of stems holding token.
func (m *Manager) DepositStems(account, token common.Address) nativecommon.IndexStore[int64] {
	return newTrieIndex(m, DepositStemsKey(account, token), stemCodec)
}

func (m *Manager) GetSiloTotals(token common.Address) (*silo.Totals, error) {
	return getRecord[silo.Totals](m, SiloTotalsKey(token))
}

func (m *Manager) PutSiloTotals(token common.Address, t *silo.Totals) error {
	return m.KVPut(SiloTotalsKey(token), &silo.Totals{
		Deposited:    nativecommon.OrZero(t.Deposited),
		DepositedBdv: nativecommon.OrZero(t.DepositedBdv),
	})
}
