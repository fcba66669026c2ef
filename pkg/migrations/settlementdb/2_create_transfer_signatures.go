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
		log.Println("creating transfer_signatures table...")
		return mghelper.CreateSchema(ctx, db, &store.SignatureDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfer_signatures table...")
		return mghelper.DropTables(ctx, db, &store.SignatureDao{})
	})
}
