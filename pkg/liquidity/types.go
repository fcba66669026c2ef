// Package liquidity tracks per-pool liquidity and the reservations that earmark it.
package liquidity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// ParseReservationStatus parses a stored status value.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(strings.ToUpper(s)); st {
	case ReservationReserved, ReservationReleased, ReservationConsumed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
}

// Reservation earmarks Amount of a pool for one transfer.
type Reservation struct {
	ID         string            `json:"reservationId"`
	Pool       bridge.PoolKey    `json:"poolKey"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     ReservationStatus `json:"status"`
	TransferID string            `json:"transferId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// PoolSnapshot is a point-in-time view of a pool. Available is always Total - Reserved.
type PoolSnapshot struct {
	Key       bridge.PoolKey  `json:"poolKey"`
	Total     decimal.Decimal `json:"totalLiquidity"`
	Reserved  decimal.Decimal `json:"reservedLiquidity"`
	Available decimal.Decimal `json:"availableLiquidity"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists pool balances and reservations. Each call carries the state
// after the mutation; the manager applies the mutation only if the call succeeds.
type Store interface {
	SavePool(ctx context.Context, pool PoolSnapshot, reservation *Reservation) error
}
