package field

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core/types"
)

const (
	EventTypeSow            = "field.sow"
	EventTypeHarvest        = "field.harvest"
	EventTypePlotTransfer   = "field.plot_transfer"
	EventTypePlotCombined   = "field.plot_combined"
	EventTypePodApproval    = "field.pod_approval"
	EventTypeFieldAdded     = "field.added"
	EventTypeActiveFieldSet = "field.active_set"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func joinIndexes(indexes []*uint256.Int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = amountString(idx)
	}
	return strings.Join(parts, ",")
}

// NewSowEvent is emitted when beans are sown into a new plot.
func NewSowEvent(account common.Address, fieldID uint64, index, beans, pods *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSow,
		Attributes: map[string]string{
			"account": account.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"index":   amountString(index),
			"beans":   amountString(beans),
			"pods":    amountString(pods),
		},
	}
}

// NewHarvestEvent is emitted once per harvest call with the plots redeemed.
func NewHarvestEvent(account common.Address, fieldID uint64, indexes []*uint256.Int, beans *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeHarvest,
		Attributes: map[string]string{
			"account": account.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"plots":   joinIndexes(indexes),
			"beans":   amountString(beans),
		},
	}
}

// NewPlotTransferEvent carries the index of the transferred range, not of the
// source plot.
func NewPlotTransferEvent(from, to common.Address, fieldID uint64, index, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypePlotTransfer,
		Attributes: map[string]string{
			"from":    from.Hex(),
			"to":      to.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"index":   amountString(index),
			"amount":  amountString(amount),
		},
	}
}

func NewPlotCombinedEvent(account common.Address, fieldID uint64, indexes []*uint256.Int, pods *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypePlotCombined,
		Attributes: map[string]string{
			"account": account.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"plots":   joinIndexes(indexes),
			"pods":    amountString(pods),
		},
	}
}

func NewPodApprovalEvent(owner, spender common.Address, fieldID uint64, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypePodApproval,
		Attributes: map[string]string{
			"owner":   owner.Hex(),
			"spender": spender.Hex(),
			"fieldId": strconv.FormatUint(fieldID, 10),
			"amount":  amountString(amount),
		},
	}
}

func NewFieldAddedEvent(fieldID uint64) *types.Event {
	return &types.Event{
		Type:       EventTypeFieldAdded,
		Attributes: map[string]string{"fieldId": strconv.FormatUint(fieldID, 10)},
	}
}

func NewActiveFieldSetEvent(fieldID, temperature uint64) *types.Event {
	return &types.Event{
		Type: EventTypeActiveFieldSet,
		Attributes: map[string]string{
			"fieldId":     strconv.FormatUint(fieldID, 10),
			"temperature": strconv.FormatUint(temperature, 10),
		},
	}
}
