package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// ErrTransferFinalized is returned when a save would overwrite a transfer that is
// already COMPLETED, FAILED or CANCELLED in the store.
var ErrTransferFinalized = errors.New("transfer is already final in the store")

var terminalStatuses = []string{
	transfer.StatusCompleted.String(),
	transfer.StatusFailed.String(),
	transfer.StatusCancelled.String(),
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the settlement store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// SaveTransfer upserts the transfer row and replaces its signature rows in one transaction.
// A row already in a terminal state is never overwritten.
func (s *pgStore) SaveTransfer(ctx context.Context, t *transfer.Transfer) error {
	dao := toTransferDao(t)
	sigs := toSignatureDaos(t)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("fee = EXCLUDED.fee").
			Set("slippage_estimate = EXCLUDED.slippage_estimate").
			Set("reservation_id = EXCLUDED.reservation_id").
			Set("source_tx_hash = EXCLUDED.source_tx_hash").
			Set("target_tx_hash = EXCLUDED.target_tx_hash").
			Set("failure_reason = EXCLUDED.failure_reason").
			Set("cancellation_reason = EXCLUDED.cancellation_reason").
			Set("escalated = EXCLUDED.escalated").
			Set("events = EXCLUDED.events").
			Set("updated_at = EXCLUDED.updated_at").
			Set("executing_since = EXCLUDED.executing_since").
			Set("completed_at = EXCLUDED.completed_at").
			Where("?TableAlias.status NOT IN (?)", bun.In(terminalStatuses)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert transfer: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrTransferFinalized
		}

		_, err = tx.NewDelete().
			Model((*SignatureDao)(nil)).
			Where("transfer_id = ?", t.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete signatures: %w", err)
		}
		if len(sigs) == 0 {
			return nil
		}
		if _, err = tx.NewInsert().Model(&sigs).Exec(ctx); err != nil {
			return fmt.Errorf("insert signatures: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save transfer %s: %w", t.ID, err)
	}
	return nil
}

// SavePool upserts the pool balance and, when given, the reservation that changed with it.
func (s *pgStore) SavePool(ctx context.Context, pool liquidity.PoolSnapshot, reservation *liquidity.Reservation) error {
	poolDao := toPoolDao(pool)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(poolDao).
			On("CONFLICT (pool_key) DO UPDATE").
			Set("total_liquidity = EXCLUDED.total_liquidity").
			Set("reserved_liquidity = EXCLUDED.reserved_liquidity").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert pool: %w", err)
		}
		if reservation == nil {
			return nil
		}

		_, err = tx.NewInsert().
			Model(toReservationDao(reservation)).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save pool %s: %w", pool.Key, err)
	}
	return nil
}

// LoadTransfer returns the stored transfer with its signatures, terminal or not.
// It returns nil when the id has never been saved.
func (s *pgStore) LoadTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	dao := new(TransferDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", transferID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load transfer %s: %w", transferID, err)
	}

	var sigs []SignatureDao
	err = s.db.NewSelect().
		Model(&sigs).
		Where("transfer_id = ?", transferID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures of %s: %w", transferID, err)
	}
	return toTransfer(dao, sigs)
}

func (s *pgStore) LoadTransfers(ctx context.Context) ([]*transfer.Transfer, error) {
	var daos []TransferDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status NOT IN (?)", bun.In(terminalStatuses)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transfers: %w", err)
	}
	if len(daos) == 0 {
		return nil, nil
	}

	ids := make([]string, len(daos))
	for i := range daos {
		ids[i] = daos[i].ID
	}
	var sigs []SignatureDao
	err = s.db.NewSelect().
		Model(&sigs).
		Where("transfer_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}
	byTransfer := make(map[string][]SignatureDao, len(daos))
	for _, sig := range sigs {
		byTransfer[sig.TransferID] = append(byTransfer[sig.TransferID], sig)
	}

	out := make([]*transfer.Transfer, 0, len(daos))
	for i := range daos {
		t, err := toTransfer(&daos[i], byTransfer[daos[i].ID])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *pgStore) LoadPools(ctx context.Context) ([]liquidity.PoolSnapshot, []liquidity.Reservation, error) {
	var poolDaos []PoolDao
	if err := s.db.NewSelect().Model(&poolDaos).Order("pool_key ASC").Scan(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load pools: %w", err)
	}
	pools := make([]liquidity.PoolSnapshot, 0, len(poolDaos))
	for i := range poolDaos {
		p, err := toPoolSnapshot(&poolDaos[i])
		if err != nil {
			return nil, nil, err
		}
		pools = append(pools, p)
	}

	var resDaos []ReservationDao
	err := s.db.NewSelect().
		Model(&resDaos).
		Where("status = ?", string(liquidity.ReservationReserved)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reservations: %w", err)
	}
	reservations := make([]liquidity.Reservation, 0, len(resDaos))
	for i := range resDaos {
		r, err := toReservation(&resDaos[i])
		if err != nil {
			return nil, nil, err
		}
		reservations = append(reservations, r)
	}
	return pools, reservations, nil
}
