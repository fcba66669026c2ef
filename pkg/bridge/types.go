// Package bridge holds the settlement vocabulary shared by the validation pipeline,
// the liquidity manager and the transfer state machine.
package bridge

import (
	"fmt"
	"strings"
)

// ChainID identifies a chain known to the bridge (e.g. "ethereum", "polygon").
type ChainID string

// NormalizeChain lower-cases and trims a chain identifier.
func NormalizeChain(chain string) ChainID {
	return ChainID(strings.ToLower(strings.TrimSpace(chain)))
}

// NormalizeAsset upper-cases and trims an asset symbol.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// PoolKey identifies a liquidity pool: one per directed chain pair and asset.
type PoolKey struct {
	SourceChain ChainID `json:"sourceChain"`
	TargetChain ChainID `json:"targetChain"`
	Asset       string  `json:"asset"`
}

// NewPoolKey builds a normalized PoolKey.
func NewPoolKey(sourceChain, targetChain, asset string) PoolKey {
	return PoolKey{
		SourceChain: NormalizeChain(sourceChain),
		TargetChain: NormalizeChain(targetChain),
		Asset:       NormalizeAsset(asset),
	}
}

// String renders the key as "source->target/ASSET".
func (k PoolKey) String() string {
	return fmt.Sprintf("%s->%s/%s", k.SourceChain, k.TargetChain, k.Asset)
}

// ParsePoolKey is the inverse of PoolKey.String.
func ParsePoolKey(s string) (PoolKey, error) {
	route, asset, ok := strings.Cut(s, "/")
	if !ok || asset == "" {
		return PoolKey{}, fmt.Errorf("invalid pool key %q", s)
	}
	src, tgt, ok := strings.Cut(route, "->")
	if !ok || src == "" || tgt == "" {
		return PoolKey{}, fmt.Errorf("invalid pool key %q", s)
	}
	return NewPoolKey(src, tgt, asset), nil
}
