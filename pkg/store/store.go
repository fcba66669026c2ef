// Package store persists transfers, pools and reservations in postgres.
package store

import (
	"context"

	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// Store is the settlement journal. It satisfies transfer.Store and liquidity.Store
// and reloads in-flight state on startup.
type Store interface {
	transfer.Store
	liquidity.Store
	// LoadTransfers returns every transfer that has not reached a terminal state.
	LoadTransfers(ctx context.Context) ([]*transfer.Transfer, error)
	// LoadPools returns all pools and their RESERVED reservations.
	LoadPools(ctx context.Context) ([]liquidity.PoolSnapshot, []liquidity.Reservation, error)
}
