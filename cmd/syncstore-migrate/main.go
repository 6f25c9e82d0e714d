package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	database "cloud.google.com/go/spanner/admin/database/apiv1"
	_ "github.com/go-sql-driver/mysql"
	adminpb "google.golang.org/genproto/googleapis/spanner/admin/database/v1"

	"github.com/cuemby/syncstore/pkg/storage/spannerstore"
	"github.com/cuemby/syncstore/pkg/storage/sqlstore"
)

var (
	backend  = flag.String("backend", "sqlstore", "Storage backend to apply schema to: sqlstore or spannerstore")
	dsn      = flag.String("dsn", "", "sqlstore: MySQL DSN")
	spannerDB = flag.String("spanner-database", "", "spannerstore: projects/<p>/instances/<i>/databases/<d>")
	dryRun   = flag.Bool("dry-run", false, "Print the DDL that would be applied without applying it")
	timeout  = flag.Duration("timeout", 2*time.Minute, "Overall timeout for schema application")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("syncstore schema migration tool")
	log.Println("================================")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch *backend {
	case "sqlstore":
		err = migrateSQLStore(ctx)
	case "spannerstore":
		err = migrateSpannerStore(ctx)
	default:
		log.Fatalf("unknown backend %q (want sqlstore or spannerstore)", *backend)
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
	} else {
		log.Println("\n✓ Schema applied successfully.")
	}
}

func migrateSQLStore(ctx context.Context) error {
	if *dsn == "" {
		return fmt.Errorf("--dsn is required for --backend=sqlstore")
	}

	log.Printf("Database: sqlstore (MySQL)")
	log.Printf("Dry run: %v", *dryRun)

	statements := splitSQLStatements(sqlstore.Schema)
	log.Printf("Found %d DDL statements", len(statements))

	if *dryRun {
		for i, stmt := range statements {
			log.Printf("[DRY RUN] statement %d:\n%s", i+1, stmt)
		}
		return nil
	}

	db, err := sql.Open("mysql", *dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
		log.Printf("  applied statement %d/%d", i+1, len(statements))
	}
	return nil
}

func migrateSpannerStore(ctx context.Context) error {
	if *spannerDB == "" {
		return fmt.Errorf("--spanner-database is required for --backend=spannerstore")
	}

	log.Printf("Database: %s (Cloud Spanner)", *spannerDB)
	log.Printf("Dry run: %v", *dryRun)
	log.Printf("Found %d DDL statements", len(spannerstore.DDL))

	if *dryRun {
		for i, stmt := range spannerstore.DDL {
			log.Printf("[DRY RUN] statement %d:\n%s", i+1, stmt)
		}
		return nil
	}

	adminClient, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return fmt.Errorf("new admin client: %w", err)
	}
	defer adminClient.Close()

	op, err := adminClient.UpdateDatabaseDdl(ctx, &adminpb.UpdateDatabaseDdlRequest{
		Database:   *spannerDB,
		Statements: spannerstore.DDL,
	})
	if err != nil {
		return fmt.Errorf("update database ddl: %w", err)
	}

	log.Println("  waiting for DDL operation to complete...")
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("update database ddl wait: %w", err)
	}
	return nil
}

// splitSQLStatements splits sqlstore.Schema's semicolon-terminated
// CREATE TABLE statements into individual statements: database/sql's MySQL
// driver doesn't support multi-statement ExecContext calls by default.
func splitSQLStatements(schema string) []string {
	var out []string
	for _, raw := range strings.Split(schema, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
