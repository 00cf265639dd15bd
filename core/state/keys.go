package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
)

var (
	fieldListKey   = []byte("field/list")
	fieldActiveKey = []byte("field/active")
	seasonKey      = []byte("season")
	weatherKey     = []byte("weather")
	rainKey        = []byte("rain")
	gaugesKey      = []byte("gauge")
	whitelistKey   = []byte("silo/whitelist")
	poolListKey    = []byte("well/pools")
)

func indexString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Hex()
}

func FieldKey(id uint64) []byte {
	return []byte(fmt.Sprintf("field/%d", id))
}

func PlotKey(account common.Address, fieldID uint64, index *uint256.Int) []byte {
	return []byte(fmt.Sprintf("plot/%s/%d/%s", account.Hex(), fieldID, indexString(index)))
}

// PlotIndexKey is the prefix of the account's plot index list in a field.
func PlotIndexKey(account common.Address, fieldID uint64) []byte {
	return []byte(fmt.Sprintf("plotidx/%s/%d", account.Hex(), fieldID))
}

func PodAllowanceKey(owner, spender common.Address, fieldID uint64) []byte {
	return []byte(fmt.Sprintf("podallow/%s/%s/%d", owner.Hex(), spender.Hex(), fieldID))
}

// ConvertCapacityKey addresses a pool's capacity used in a season. The zero
// pool holds the overall bucket.
func ConvertCapacityKey(season uint32, pool common.Address) []byte {
	if pool == (common.Address{}) {
		return []byte(fmt.Sprintf("capacity/%d", season))
	}
	return []byte(fmt.Sprintf("capacity/%d/%s", season, pool.Hex()))
}

func ConvertBonusKey(season uint32, account common.Address) []byte {
	return []byte(fmt.Sprintf("convertbonus/%d/%s", season, account.Hex()))
}

func WhitelistEntryKey(token common.Address) []byte {
	return []byte("silo/whitelist/" + token.Hex())
}

func DepositKey(account, token common.Address, stem int64) []byte {
	return []byte(fmt.Sprintf("deposit/%s/%s/%d", account.Hex(), token.Hex(), stem))
}

// DepositStemsKey is the prefix of the account's stem list for a token.
func DepositStemsKey(account, token common.Address) []byte {
	return []byte(fmt.Sprintf("stems/%s/%s", account.Hex(), token.Hex()))
}

func SiloTotalsKey(token common.Address) []byte {
	return []byte("silo/totals/" + token.Hex())
}

func ListingKey(fieldID uint64, index *uint256.Int) []byte {
	return []byte(fmt.Sprintf("listing/%d/%s", fieldID, indexString(index)))
}

func PoolKey(pool common.Address) []byte {
	return []byte("well/pool/" + pool.Hex())
}

func BalanceKey(token, account common.Address, mode bank.Mode) []byte {
	return []byte(fmt.Sprintf("balance/%s/%s/%s", token.Hex(), account.Hex(), mode))
}

func SupplyKey(token common.Address) []byte {
	return []byte("supply/" + token.Hex())
}
