package convert

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/native/bank"
)

var (
	ErrPipeExists      = errors.New("convert pipeline: pipe already registered")
	ErrUnknownPipe     = errors.New("convert pipeline: unknown pipe")
	ErrInvalidPipe     = errors.New("convert pipeline: pipe tokens must be distinct and non-zero")
	ErrPipeDryRun      = errors.New("convert pipeline: pipe failed dry run")
	ErrPipeChainBroken = errors.New("convert pipeline: pipe tokens do not chain")
	ErrEmptyPipeline   = errors.New("convert pipeline: no pipes")
)

// Pipe is one allow-listed step of a pipeline convert. Execute acts on
// tokens held by holder in internal balances.
type Pipe interface {
	TokenIn() common.Address
	TokenOut() common.Address
	Quote(amountIn *uint256.Int) (*uint256.Int, error)
	Execute(holder common.Address, amountIn *uint256.Int) (*uint256.Int, error)
}

// PipeRegistry is the allow-list of pipes a pipeline convert may use.
type PipeRegistry struct {
	mu    sync.RWMutex
	pipes map[string]Pipe
}

func NewPipeRegistry() *PipeRegistry {
	return &PipeRegistry{pipes: make(map[string]Pipe)}
}

// Register adds pipe under name after checking its token types and quoting
// a zero amount through it.
func (r *PipeRegistry) Register(name string, pipe Pipe) error {
	if r == nil || pipe == nil || name == "" {
		return ErrInvalidPipe
	}
	in, out := pipe.TokenIn(), pipe.TokenOut()
	if in == (common.Address{}) || out == (common.Address{}) || in == out {
		return ErrInvalidPipe
	}
	if _, err := pipe.Quote(new(uint256.Int)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPipeDryRun, name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pipes[name]; ok {
		return ErrPipeExists
	}
	r.pipes[name] = pipe
	return nil
}

// Unregister drops the pipe registered under name, if any.
func (r *PipeRegistry) Unregister(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipes, name)
}

// Lookup returns the pipe registered under name.
func (r *PipeRegistry) Lookup(name string) (Pipe, error) {
	if r == nil {
		return nil, ErrUnknownPipe
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pipe, ok := r.pipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipe, name)
	}
	return pipe, nil
}

// Names lists registered pipes in sorted order.
func (r *PipeRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pipes))
	for name := range r.pipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve looks up names and checks that they carry from into to.
func (r *PipeRegistry) resolve(names []string, from, to common.Address) ([]Pipe, error) {
	if len(names) == 0 {
		return nil, ErrEmptyPipeline
	}
	pipes := make([]Pipe, 0, len(names))
	token := from
	for _, name := range names {
		pipe, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		if pipe.TokenIn() != token {
			return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrPipeChainBroken, name, pipe.TokenIn().Hex(), token.Hex())
		}
		token = pipe.TokenOut()
		pipes = append(pipes, pipe)
	}
	if token != to {
		return nil, fmt.Errorf("%w: pipeline ends in %s", ErrPipeChainBroken, token.Hex())
	}
	return pipes, nil
}

// quotePipes runs the quote chain without touching state.
func quotePipes(pipes []Pipe, amount *uint256.Int) (*uint256.Int, error) {
	var err error
	for _, pipe := range pipes {
		if amount, err = pipe.Quote(amount); err != nil {
			return nil, err
		}
	}
	return amount, nil
}

// Venue is the liquidity venue formulaic converts and the built-in pipes
// trade against.
type Venue interface {
	QuoteAddLiquidity(pool common.Address, beans, nonBeans *uint256.Int) (*uint256.Int, error)
	AddLiquidity(account, pool common.Address, beans, nonBeans, minLP *uint256.Int, mode bank.Mode) (*uint256.Int, error)
	QuoteRemoveLiquidityOneToken(pool common.Address, lp *uint256.Int, token common.Address) (*uint256.Int, error)
	RemoveLiquidityOneToken(account, pool common.Address, lp *uint256.Int, token common.Address, minOut *uint256.Int, mode bank.Mode) (*uint256.Int, error)
}

// AddLiquidityPipe adds beans to a pool as single-sided liquidity.
type AddLiquidityPipe struct {
	Venue Venue
	Bean  common.Address
	Pool  common.Address
}

func (p AddLiquidityPipe) TokenIn() common.Address  { return p.Bean }
func (p AddLiquidityPipe) TokenOut() common.Address { return p.Pool }

func (p AddLiquidityPipe) Quote(amountIn *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return new(uint256.Int), nil
	}
	return p.Venue.QuoteAddLiquidity(p.Pool, amountIn, nil)
}

func (p AddLiquidityPipe) Execute(holder common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return p.Venue.AddLiquidity(holder, p.Pool, amountIn, nil, nil, bank.Internal)
}

// RemoveLiquidityPipe removes pool LP as beans.
type RemoveLiquidityPipe struct {
	Venue Venue
	Bean  common.Address
	Pool  common.Address
}

func (p RemoveLiquidityPipe) TokenIn() common.Address  { return p.Pool }
func (p RemoveLiquidityPipe) TokenOut() common.Address { return p.Bean }

func (p RemoveLiquidityPipe) Quote(amountIn *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return new(uint256.Int), nil
	}
	return p.Venue.QuoteRemoveLiquidityOneToken(p.Pool, amountIn, p.Bean)
}

func (p RemoveLiquidityPipe) Execute(holder common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return p.Venue.RemoveLiquidityOneToken(holder, p.Pool, amountIn, p.Bean, nil, bank.Internal)
}
