package settlementdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/bridge-settlement/pkg/pgutil/migrations"
	"github.com/chainsafe/bridge-settlement/pkg/store"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating liquidity_pools and liquidity_reservations tables...")
		if err := mghelper.CreateSchema(ctx, db, &store.PoolDao{}, &store.ReservationDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.ReservationDao{}, "pool_key", "status", "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping liquidity tables...")
		return mghelper.DropTables(ctx, db, &store.ReservationDao{}, &store.PoolDao{})
	})
}
