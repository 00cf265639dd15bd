package silo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrPluginExists   = errors.New("silo: bdv plugin already registered")
	ErrUnknownPlugin  = errors.New("silo: bdv plugin not registered")
	ErrPluginDryRun   = errors.New("silo: bdv plugin failed dry run")
	errNilPlugin      = errors.New("silo: nil bdv plugin")
	errEmptyPluginKey = errors.New("silo: bdv plugin name required")
)

// BDVPlugin values an amount of token in beans.
type BDVPlugin interface {
	BDV(token common.Address, amount *uint256.Int) (*uint256.Int, error)
}

// BDVFunc adapts a function to BDVPlugin.
type BDVFunc func(token common.Address, amount *uint256.Int) (*uint256.Int, error)

func (f BDVFunc) BDV(token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return f(token, amount)
}

// BeanBDV values beans one to one.
var BeanBDV = BDVFunc(func(_ common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	return amount.Clone(), nil
})

// Registry is the allow-list of BDV plugins whitelist entries may name.
type Registry struct {
	plugins map[string]BDVPlugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]BDVPlugin)}
}

// Register adds a plugin after checking that valuing zero succeeds.
func (r *Registry) Register(name string, plugin BDVPlugin) error {
	if name == "" {
		return errEmptyPluginKey
	}
	if plugin == nil {
		return errNilPlugin
	}
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, name)
	}
	if err := dryRun(plugin, common.Address{}); err != nil {
		return err
	}
	r.plugins[name] = plugin
	return nil
}

func dryRun(plugin BDVPlugin, token common.Address) error {
	out, err := plugin.BDV(token, new(uint256.Int))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPluginDryRun, err)
	}
	if out == nil {
		return fmt.Errorf("%w: nil result", ErrPluginDryRun)
	}
	return nil
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (BDVPlugin, error) {
	plugin, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return plugin, nil
}

// Names lists the registered plugins in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
