package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/syncstore/pkg/collections"
	"github.com/cuemby/syncstore/pkg/dispatch"
	"github.com/cuemby/syncstore/pkg/httpapi"
	"github.com/cuemby/syncstore/pkg/log"
	"github.com/cuemby/syncstore/pkg/metrics"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/storage/spannerstore"
	"github.com/cuemby/syncstore/pkg/storage/sqlstore"
	"github.com/cuemby/syncstore/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "syncstored",
	Short:   "syncstored - multi-tenant BSO storage server",
	Long:    `syncstored serves the Sync 1.5 storage API: per-user collections of BSOs, batch uploads, and quota enforcement, backed by either MySQL or Cloud Spanner.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("syncstored version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("addr", ":8000", "Address to listen on")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for /metrics, /health, /ready, /live")
	rootCmd.Flags().String("backend", "sqlstore", "Storage backend: sqlstore or spannerstore")
	rootCmd.Flags().String("dsn", "", "sqlstore: MySQL DSN (required when --backend=sqlstore)")
	rootCmd.Flags().String("spanner-database", "", "spannerstore: projects/<p>/instances/<i>/databases/<d> (required when --backend=spannerstore)")
	rootCmd.Flags().Int("max-open-conns", 50, "sqlstore: maximum open connections")
	rootCmd.Flags().Int("max-idle-conns", 10, "sqlstore: maximum idle connections")
	rootCmd.Flags().Duration("conn-max-lifetime", time.Hour, "sqlstore: maximum connection lifetime")
	rootCmd.Flags().Int64("max-post-bytes", 2*1024*1024, "Maximum payload bytes accepted per post_bsos/PUT record")
	rootCmd.Flags().Int("max-post-records", 100, "Maximum records accepted per post_bsos call")
	rootCmd.Flags().Int64("max-total-bytes", 200*1024*1024, "Maximum payload bytes accepted per post_bsos/commit_batch call")
	rootCmd.Flags().Int("max-total-records", 10000, "Maximum records accepted per post_bsos/commit_batch call")
	rootCmd.Flags().Int64("max-record-payload-bytes", 2*1024*1024, "Maximum payload bytes for a single BSO record")
	rootCmd.Flags().Bool("quota-enabled", false, "Report quota usage in /info/quota")
	rootCmd.Flags().Bool("quota-enforce", false, "Reject writes that would exceed quota")
	rootCmd.Flags().Int64("quota-bytes", 2*1024*1024*1024, "Per-user quota limit in bytes")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func limitsFromFlags(cmd *cobra.Command) types.Limits {
	maxPostBytes, _ := cmd.Flags().GetInt64("max-post-bytes")
	maxPostRecords, _ := cmd.Flags().GetInt("max-post-records")
	maxTotalBytes, _ := cmd.Flags().GetInt64("max-total-bytes")
	maxTotalRecords, _ := cmd.Flags().GetInt("max-total-records")
	maxRecordPayloadBytes, _ := cmd.Flags().GetInt64("max-record-payload-bytes")
	return types.Limits{
		MaxPostBytes:          maxPostBytes,
		MaxPostRecords:        maxPostRecords,
		MaxTotalBytes:         maxTotalBytes,
		MaxTotalRecords:       maxTotalRecords,
		MaxRequestBytes:       maxTotalBytes,
		MaxRecordPayloadBytes: maxRecordPayloadBytes,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("syncstored")

	addr, _ := cmd.Flags().GetString("addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	backendName, _ := cmd.Flags().GetString("backend")
	quotaEnabled, _ := cmd.Flags().GetBool("quota-enabled")
	quotaEnforce, _ := cmd.Flags().GetBool("quota-enforce")
	quotaBytes, _ := cmd.Flags().GetInt64("quota-bytes")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := collections.New()
	backend, err := openBackend(ctx, cmd, backendName, cache, quotaEnabled, quotaEnforce, quotaBytes)
	if err != nil {
		return fmt.Errorf("open backend %q: %w", backendName, err)
	}
	defer backend.Close()

	metrics.RegisterComponent("backend", true, "connected")
	metrics.RegisterComponent("api", true, "")
	metrics.SetVersion(Version)

	dispatcher := dispatch.New(backend, logger)
	apiHandler := httpapi.New(logger, dispatcher)

	apiServer := &http.Server{
		Addr:         addr,
		Handler:      apiHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsMux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", addr).Msg("storage API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("storage API server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", metricsAddr).Msg("metrics/health listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("storage API shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	return mux
}

func openBackend(ctx context.Context, cmd *cobra.Command, name string, cache *collections.Cache, quotaEnabled, quotaEnforce bool, quotaBytes int64) (storage.Backend, error) {
	lim := limitsFromFlags(cmd)

	switch name {
	case "sqlstore":
		dsn, _ := cmd.Flags().GetString("dsn")
		if dsn == "" {
			return nil, fmt.Errorf("--dsn is required for --backend=sqlstore")
		}
		maxOpenConns, _ := cmd.Flags().GetInt("max-open-conns")
		maxIdleConns, _ := cmd.Flags().GetInt("max-idle-conns")
		connMaxLifetime, _ := cmd.Flags().GetDuration("conn-max-lifetime")
		return sqlstore.Open(ctx, sqlstore.Config{
			DSN:             dsn,
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
			Limits:          lim,
			QuotaEnabled:    quotaEnabled,
			QuotaEnforce:    quotaEnforce,
			QuotaBytes:      quotaBytes,
		}, cache)
	case "spannerstore":
		database, _ := cmd.Flags().GetString("spanner-database")
		if database == "" {
			return nil, fmt.Errorf("--spanner-database is required for --backend=spannerstore")
		}
		return spannerstore.Open(ctx, spannerstore.Config{
			Database:     database,
			Limits:       lim,
			QuotaEnabled: quotaEnabled,
			QuotaEnforce: quotaEnforce,
			QuotaBytes:   quotaBytes,
		}, cache)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlstore or spannerstore)", name)
	}
}
