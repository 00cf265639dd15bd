package market

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypeListingCreated   = "market.listing_created"
	EventTypeListingCancelled = "market.listing_cancelled"
	EventTypeListingFilled    = "market.listing_filled"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func NewListingCreatedEvent(l *Listing) *types.Event {
	return &types.Event{
		Type: EventTypeListingCreated,
		Attributes: map[string]string{
			"lister":              l.Lister.Hex(),
			"fieldId":             strconv.FormatUint(l.FieldID, 10),
			"index":               amountString(l.Index),
			"start":               amountString(l.Start),
			"amount":              amountString(l.Amount),
			"pricePerPod":         strconv.FormatUint(uint64(l.PricePerPod), 10),
			"maxHarvestableIndex": amountString(l.MaxHarvestableIndex),
			"minFillAmount":       amountString(l.MinFillAmount),
			"mode":                l.Mode.String(),
		},
	}
}

func NewListingCancelledEvent(lister common.Address, fieldID uint64, index *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeListingCancelled,
		Attributes: map[string]string{
			"lister":  lister.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"index":   amountString(index),
		},
	}
}

// NewListingFilledEvent carries the plot index of the pods bought.
func NewListingFilledEvent(lister, buyer common.Address, fieldID uint64, index, pods, beans *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeListingFilled,
		Attributes: map[string]string{
			"lister":  lister.Hex(),
			"buyer":   buyer.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"index":   amountString(index),
			"pods":    amountString(pods),
			"beans":   amountString(beans),
		},
	}
}
