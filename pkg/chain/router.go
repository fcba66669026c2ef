// Package chain provides the chain adapters the transfer machine hands execution to.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// ErrUnsupportedChain is returned when no adapter is registered for a chain.
var ErrUnsupportedChain = errors.New("no adapter for chain")

// Router dispatches adapter calls to the adapter registered for the source chain.
type Router struct {
	mu       sync.RWMutex
	adapters map[bridge.ChainID]transfer.Adapter
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{adapters: make(map[bridge.ChainID]transfer.Adapter)}
}

// Register sets the adapter for chain, replacing any earlier one.
func (r *Router) Register(chain bridge.ChainID, adapter transfer.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[bridge.NormalizeChain(string(chain))] = adapter
}

// Chains returns the chains with a registered adapter, sorted.
func (r *Router) Chains() []bridge.ChainID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bridge.ChainID, 0, len(r.adapters))
	for c := range r.adapters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LockFunds implements transfer.Adapter.
func (r *Router) LockFunds(ctx context.Context, t *transfer.Transfer) (string, error) {
	a, err := r.adapter(t.SourceChain)
	if err != nil {
		return "", err
	}
	return a.LockFunds(ctx, t)
}

// AwaitConfirmation implements transfer.Adapter.
func (r *Router) AwaitConfirmation(ctx context.Context, chain bridge.ChainID, txHash string) (transfer.Confirmation, error) {
	a, err := r.adapter(chain)
	if err != nil {
		return transfer.Confirmation{}, err
	}
	return a.AwaitConfirmation(ctx, chain, txHash)
}

func (r *Router) adapter(chain bridge.ChainID) (transfer.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedChain, chain)
	}
	return a, nil
}
