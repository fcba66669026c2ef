package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/pkg/migrations/settlementdb"
	"github.com/chainsafe/bridge-settlement/pkg/pgutil"
	mghelper "github.com/chainsafe/bridge-settlement/pkg/pgutil/migrations"
)

func TestSettlementDBMigrations_Apply(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, settlementdb.Migrations)

	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	for _, table := range []string{
		"transfers",
		"transfer_signatures",
		"liquidity_pools",
		"liquidity_reservations",
		"bun_migrations",
	} {
		pgutil.AssertTableExists(t, db, table)
	}

	pgutil.AssertIndexExists(t, db, "idx_transfers_status")
	pgutil.AssertIndexExists(t, db, "idx_transfers_source_tx_hash")
	pgutil.AssertIndexExists(t, db, "idx_liquidity_reservations_pool_key")
	pgutil.AssertIndexExists(t, db, "idx_liquidity_reservations_transfer_id")
}

func TestSettlementDBMigrations_Rollback(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, settlementdb.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Fatal("Expected a migration group to be rolled back")
	}

	for _, table := range []string{"transfers", "transfer_signatures", "liquidity_pools", "liquidity_reservations"} {
		pgutil.AssertTableNotExists(t, db, table)
	}
	pgutil.AssertTableExists(t, db, "bun_migrations")
}

func TestRunMigrations_Commands(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, settlementdb.Migrations)
	logger := zap.NewNop()

	if err := mghelper.RunMigrations(ctx, migrator, logger); err == nil {
		t.Fatal("expected error without a command")
	}
	if err := mghelper.RunMigrations(ctx, migrator, logger, "sideways"); err == nil {
		t.Fatal("expected error for unknown command")
	}

	for _, cmd := range []string{"init", "up", "status", "up"} {
		if err := mghelper.RunMigrations(ctx, migrator, logger, cmd); err != nil {
			t.Fatalf("%s failed: %v", cmd, err)
		}
	}
	pgutil.AssertTableExists(t, db, "transfers")

	if err := mghelper.RunMigrations(ctx, migrator, logger, "down"); err != nil {
		t.Fatalf("down failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "transfers")
}
