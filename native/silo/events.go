package silo

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypeWhitelist        = "silo.whitelist"
	EventTypeAddDeposit       = "silo.add_deposit"
	EventTypeRemoveDeposit    = "silo.remove_deposit"
	EventTypeShipmentReceived = "silo.shipment_received"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func NewWhitelistEvent(entry *WhitelistEntry) *types.Event {
	return &types.Event{
		Type: EventTypeWhitelist,
		Attributes: map[string]string{
			"token":                entry.Token.Hex(),
			"bdvPlugin":            entry.BDVPlugin,
			"stalkEarnedPerSeason": strconv.FormatUint(entry.StalkEarnedPerSeason, 10),
			"isPool":               strconv.FormatBool(entry.IsPool),
		},
	}
}

func NewAddDepositEvent(account, token common.Address, stem int64, amount, bdv *uint256.Int) *types.Event {
	return depositEvent(EventTypeAddDeposit, account, token, stem, amount, bdv)
}

func NewRemoveDepositEvent(account, token common.Address, stem int64, amount, bdv *uint256.Int) *types.Event {
	return depositEvent(EventTypeRemoveDeposit, account, token, stem, amount, bdv)
}

func depositEvent(kind string, account, token common.Address, stem int64, amount, bdv *uint256.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"account": account.Hex(),
			"token":   token.Hex(),
			"stem":    strconv.FormatInt(stem, 10),
			"amount":  amountString(amount),
			"bdv":     amountString(bdv),
		},
	}
}

func NewShipmentReceivedEvent(beans *uint256.Int) *types.Event {
	return &types.Event{
		Type:       EventTypeShipmentReceived,
		Attributes: map[string]string{"beans": amountString(beans)},
	}
}
