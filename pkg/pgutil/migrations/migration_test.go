package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/pgutil"
)

type testDao struct {
	bun.BaseModel `bun:"table:test_table"`
	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:",notnull,type:varchar(100)"`
	Age           int    `bun:",nullzero"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg, nil)
	if err == nil {
		_ = db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateAndDropSchema(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "test_table")

	// idempotent
	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}

	if err := DropTables(ctx, db, &testDao{}); err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "test_table")

	if err := DropTables(ctx, db, &testDao{}); err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestTruncateTables(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	rows := []testDao{{Name: "a", Age: 20}, {Name: "b", Age: 25}}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	pgutil.AssertRowCount(t, db, "test_table", 2)

	if err := TruncateTables(ctx, db, &testDao{}); err != nil {
		t.Fatalf("TruncateTables() failed: %v", err)
	}
	pgutil.AssertRowCount(t, db, "test_table", 0)
	pgutil.AssertTableExists(t, db, "test_table")
}

func TestCreateModelIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &testDao{}, "name", "age"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_table_name")
	pgutil.AssertIndexExists(t, db, "idx_test_table_age")
}
