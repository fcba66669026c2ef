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
		log.Println("creating transfers table...")
		if err := mghelper.CreateSchema(ctx, db, &store.TransferDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.TransferDao{}, "status", "source_tx_hash", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfers table...")
		return mghelper.DropTables(ctx, db, &store.TransferDao{})
	})
}
