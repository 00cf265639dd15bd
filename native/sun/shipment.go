package sun

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
	nativecommon "beanstalk/native/common"
)

var (
	ErrPlanExists   = errors.New("sun shipment: plan already registered")
	ErrUnknownPlan  = errors.New("sun shipment: unknown plan")
	ErrPlanDryRun   = errors.New("sun shipment: plan failed dry run")
	ErrInvalidRoute = errors.New("sun shipment: invalid route")
)

// Route sends a share of minted beans to a recipient through a plan.
type Route struct {
	Plan      string
	Points    uint64
	FieldID   uint64
	Recipient common.Address
}

// Plan is the capability a route ships through. Cap returns nil for routes
// without a cap. Ship records beans already minted to the recipient and
// must accept a zero amount.
type Plan interface {
	Recipient(route Route) (common.Address, bank.Mode)
	Cap(route Route) (*uint256.Int, error)
	Ship(route Route, beans *uint256.Int) error
}

// PlanRegistry is the allow-list of shipment plans.
type PlanRegistry struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

func NewPlanRegistry() *PlanRegistry {
	return &PlanRegistry{plans: make(map[string]Plan)}
}

// Register adds plan under name after shipping zero beans through it.
func (r *PlanRegistry) Register(name string, plan Plan) error {
	if r == nil || plan == nil || name == "" {
		return ErrInvalidRoute
	}
	if err := plan.Ship(Route{Plan: name}, new(uint256.Int)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPlanDryRun, name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[name]; ok {
		return ErrPlanExists
	}
	r.plans[name] = plan
	return nil
}

func (r *PlanRegistry) Lookup(name string) (Plan, error) {
	if r == nil {
		return nil, ErrUnknownPlan
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, name)
	}
	return plan, nil
}

func (r *PlanRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plans))
	for name := range r.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// allocate splits beans across routes by points. A capped route whose share
// exceeds its cap receives the cap and the excess is split again among the
// rest. Rounding dust goes to the last uncapped route. Beans no route can
// take are left unallocated.
func allocate(beans *uint256.Int, points []uint64, caps []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(points))
	for i := range out {
		out[i] = new(uint256.Int)
	}
	remaining := nativecommon.OrZero(beans).Clone()
	open := make([]int, 0, len(points))
	for i, pts := range points {
		if pts > 0 {
			open = append(open, i)
		}
	}
	for len(open) > 0 && !remaining.IsZero() {
		total := new(uint256.Int)
		for _, i := range open {
			total.Add(total, uint256.NewInt(points[i]))
		}
		shares := make(map[int]*uint256.Int, len(open))
		next := open[:0:0]
		capped := false
		for _, i := range open {
			share, err := nativecommon.MulDiv(remaining, uint256.NewInt(points[i]), total)
			if err != nil {
				share = new(uint256.Int)
			}
			if caps[i] != nil && !share.Lt(caps[i]) {
				shares[i] = caps[i].Clone()
				capped = true
				continue
			}
			shares[i] = share
			next = append(next, i)
		}
		if capped {
			// Fill the capped routes and split what is left again.
			for _, i := range open {
				if caps[i] != nil && !shares[i].Lt(caps[i]) {
					out[i] = shares[i]
					remaining.Sub(remaining, shares[i])
				}
			}
			open = next
			continue
		}
		spent := new(uint256.Int)
		for _, i := range open {
			out[i] = shares[i]
			spent.Add(spent, shares[i])
		}
		remaining.Sub(remaining, spent)
		for j := len(open) - 1; j >= 0 && !remaining.IsZero(); j-- {
			if caps[open[j]] == nil {
				out[open[j]] = new(uint256.Int).Add(out[open[j]], remaining)
				remaining.Clear()
			}
		}
		break
	}
	return out
}

// Reserve is the field view the field plan ships through.
type Reserve interface {
	Reserve() common.Address
	TotalUnharvestable(fieldID uint64) (*uint256.Int, error)
	IncreaseHarvestable(fieldID uint64, amount *uint256.Int) (*uint256.Int, error)
}

// FieldPlan pays down a field's pod line. It is capped at the field's
// unharvestable pods.
type FieldPlan struct{ Field Reserve }

func (p FieldPlan) Recipient(Route) (common.Address, bank.Mode) {
	return p.Field.Reserve(), bank.Internal
}

func (p FieldPlan) Cap(route Route) (*uint256.Int, error) {
	return p.Field.TotalUnharvestable(route.FieldID)
}

func (p FieldPlan) Ship(route Route, beans *uint256.Int) error {
	if beans == nil || beans.IsZero() {
		return nil
	}
	_, err := p.Field.IncreaseHarvestable(route.FieldID, beans)
	return err
}

// Shipment is the silo view the silo plan ships through.
type Shipment interface {
	Address() common.Address
	ReceiveShipment(beans *uint256.Int) error
}

// SiloPlan ships beans to silo depositors. It is uncapped.
type SiloPlan struct{ Silo Shipment }

func (p SiloPlan) Recipient(Route) (common.Address, bank.Mode) {
	return p.Silo.Address(), bank.Internal
}

func (SiloPlan) Cap(Route) (*uint256.Int, error) { return nil, nil }

func (p SiloPlan) Ship(_ Route, beans *uint256.Int) error {
	if beans == nil || beans.IsZero() {
		return nil
	}
	return p.Silo.ReceiveShipment(beans)
}

// BudgetPlan pays the route's recipient directly. It is uncapped.
type BudgetPlan struct{}

func (BudgetPlan) Recipient(route Route) (common.Address, bank.Mode) {
	return route.Recipient, bank.External
}

func (BudgetPlan) Cap(Route) (*uint256.Int, error) { return nil, nil }

func (BudgetPlan) Ship(Route, *uint256.Int) error { return nil }
