package validation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// Chain describes a chain the bridge routes to or from.
type Chain struct {
	ID        bridge.ChainID
	BlockTime time.Duration
	// Congestion scales the gas component of the fee; 1 is nominal.
	Congestion decimal.Decimal
	// GasFee is the nominal per-transfer gas cost on this chain, in asset units.
	GasFee decimal.Decimal
}

// Asset describes a bridgeable asset and its transfer bounds. A zero Max leaves
// the amount unbounded above.
type Asset struct {
	Symbol        string
	Decimals      int32
	Min           decimal.Decimal
	Max           decimal.Decimal
	FeeMultiplier decimal.Decimal
}

// Bounded reports whether the asset has an upper transfer limit.
func (a Asset) Bounded() bool {
	return a.Max.IsPositive()
}

// Route allows Assets to move from Source to Target. A nil Assets set allows every asset.
type Route struct {
	Source bridge.ChainID
	Target bridge.ChainID
	Assets []string
}

type routeKey struct {
	source bridge.ChainID
	target bridge.ChainID
}

// Registry is the read-only catalog of chains, assets and supported routes.
type Registry struct {
	chains map[bridge.ChainID]Chain
	assets map[string]Asset
	// routes is nil when every ordered pair of distinct chains is supported
	routes map[routeKey]map[string]bool
}

// NewRegistry builds a Registry. With no routes, every ordered pair of distinct
// known chains may carry every known asset.
func NewRegistry(chains []Chain, assets []Asset, routes []Route) *Registry {
	r := &Registry{
		chains: make(map[bridge.ChainID]Chain, len(chains)),
		assets: make(map[string]Asset, len(assets)),
	}
	for _, c := range chains {
		if c.Congestion.IsZero() {
			c.Congestion = decimal.NewFromInt(1)
		}
		r.chains[c.ID] = c
	}
	for _, a := range assets {
		a.Symbol = bridge.NormalizeAsset(a.Symbol)
		if a.FeeMultiplier.IsZero() {
			a.FeeMultiplier = decimal.NewFromInt(1)
		}
		r.assets[a.Symbol] = a
	}
	if len(routes) > 0 {
		r.routes = make(map[routeKey]map[string]bool, len(routes))
		for _, rt := range routes {
			var allowed map[string]bool
			if len(rt.Assets) > 0 {
				allowed = make(map[string]bool, len(rt.Assets))
				for _, a := range rt.Assets {
					allowed[bridge.NormalizeAsset(a)] = true
				}
			}
			r.routes[routeKey{rt.Source, rt.Target}] = allowed
		}
	}
	return r
}

// DefaultRegistry returns the built-in chain and asset catalog.
func DefaultRegistry() *Registry {
	d := decimal.RequireFromString
	chains := []Chain{
		{ID: "ethereum", BlockTime: 15 * time.Second, Congestion: d("1.5"), GasFee: d("0.01")},
		{ID: "polygon", BlockTime: 2 * time.Second, Congestion: d("1"), GasFee: d("0.001")},
		{ID: "bsc", BlockTime: 3 * time.Second, Congestion: d("1"), GasFee: d("0.002")},
		{ID: "avalanche", BlockTime: 2 * time.Second, Congestion: d("1"), GasFee: d("0.003")},
		{ID: "solana", BlockTime: 400 * time.Millisecond, Congestion: d("1"), GasFee: d("0.0005")},
		{ID: "aurigraph", BlockTime: time.Second, Congestion: d("1"), GasFee: d("0.0001")},
	}
	assets := []Asset{
		{Symbol: "ETH", Decimals: 18, Min: d("0.01"), Max: d("100")},
		{Symbol: "USDT", Decimals: 6, Min: d("100"), Max: d("1000000")},
		{Symbol: "USDC", Decimals: 6, Min: d("100"), Max: d("1000000")},
		{Symbol: "WBTC", Decimals: 8, Min: d("0.001"), Max: d("10")},
		{Symbol: "AUR", Decimals: 18, Min: d("1"), Max: d("10000000")},
	}
	return NewRegistry(chains, assets, nil)
}

// Chain returns the chain with id.
func (r *Registry) Chain(id bridge.ChainID) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// Asset returns the asset with symbol.
func (r *Registry) Asset(symbol string) (Asset, bool) {
	a, ok := r.assets[bridge.NormalizeAsset(symbol)]
	return a, ok
}

// SupportsPair reports whether source->target is a supported route.
func (r *Registry) SupportsPair(source, target bridge.ChainID) bool {
	if source == target {
		return false
	}
	if _, ok := r.chains[source]; !ok {
		return false
	}
	if _, ok := r.chains[target]; !ok {
		return false
	}
	if r.routes == nil {
		return true
	}
	_, ok := r.routes[routeKey{source, target}]
	return ok
}

// Bridgeable reports whether asset may move along source->target.
func (r *Registry) Bridgeable(source, target bridge.ChainID, asset string) bool {
	if !r.SupportsPair(source, target) {
		return false
	}
	asset = bridge.NormalizeAsset(asset)
	if _, ok := r.assets[asset]; !ok {
		return false
	}
	if r.routes == nil {
		return true
	}
	allowed := r.routes[routeKey{source, target}]
	return allowed == nil || allowed[asset]
}

// ChainIDs returns the known chains, sorted.
func (r *Registry) ChainIDs() []bridge.ChainID {
	ids := make([]bridge.ChainID, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assets returns the known assets, sorted by symbol.
func (r *Registry) Assets() []Asset {
	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
