package sqlstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cuemby/syncstore/pkg/collections"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/storage/sqlstore"
	"github.com/cuemby/syncstore/pkg/storage/storagetest"
	"github.com/cuemby/syncstore/pkg/types"
)

// TestConformance runs the shared backend suite against a real MySQL
// instance. Set SYNCSTORE_TEST_MYSQL_DSN to a writable scratch database to
// run it; otherwise it's skipped, matching how the rest of this codebase
// gates on external services that aren't available in every environment.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("SYNCSTORE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SYNCSTORE_TEST_MYSQL_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			t.Fatalf("sql.Open: %v", err)
		}
		if err := db.PingContext(context.Background()); err != nil {
			t.Skipf("MySQL not reachable: %v", err)
		}
		if _, err := db.Exec(sqlstore.Schema); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
		t.Cleanup(func() {
			for _, stmt := range []string{"DELETE FROM bsos", "DELETE FROM batches", "DELETE FROM user_collections", "DELETE FROM collections"} {
				_, _ = db.Exec(stmt)
			}
			db.Close()
		})

		cfg := sqlstore.Config{
			Limits: types.Limits{
				MaxRecordPayloadBytes: 2 * 1024 * 1024,
				MaxPostRecords:        100,
			},
			QuotaEnabled: true,
			QuotaEnforce: true,
			QuotaBytes:   4096,
		}
		return sqlstore.NewForDB(db, cfg, collections.New())
	})
}
