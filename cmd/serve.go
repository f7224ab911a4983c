package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/memory"
	"github.com/facegate/facegate/internal/database/postgres"
	"github.com/facegate/facegate/internal/embedding"
	"github.com/facegate/facegate/internal/identify"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/verify"
	"github.com/facegate/facegate/internal/web"
	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Facegate web server.
The server exposes the registration, session, verification, and
attendance ledger API. Expired unattended sessions are purged
periodically in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// openStore connects to PostgreSQL when DATABASE_URL is set, otherwise falls
// back to the in-memory store. The fallback loses all state on restart, so it
// is only meant for development.
func openStore(cfg *config.Config) (database.Store, func(), error) {
	if cfg.Database.URL == "" {
		fmt.Println("Warning: DATABASE_URL not set, using in-memory store (state is lost on restart)")
		return memory.NewStore(), func() {}, nil
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	fmt.Println("Using PostgreSQL backend")
	return postgres.NewStore(pool), func() { pool.Close() }, nil
}

// buildIndex loads every registered subject into the nearest-neighbor index.
func buildIndex(ctx context.Context, store database.Store) (*identify.Index, error) {
	subjects, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading subjects for index: %w", err)
	}

	index := identify.NewIndex()
	index.Build(subjects)
	fmt.Printf("Identification index built with %d subjects\n", index.Len())
	return index, nil
}

// startPurgeJob schedules periodic removal of expired unattended sessions.
func startPurgeJob(registry *session.Registry) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(5).Minutes().Do(func() {
		deleted, err := registry.PurgeExpired(context.Background())
		if err != nil {
			fmt.Printf("Warning: session purge failed: %v\n", err)
			return
		}
		if deleted > 0 {
			fmt.Printf("Purged %d expired sessions\n", deleted)
		}
	})
	scheduler.StartAsync()
	return scheduler
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET environment variable is required")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	index, err := buildIndex(context.Background(), store)
	if err != nil {
		return err
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.MaxFrameSize)
	engine := verify.NewEngine(embedder, verify.Policy{
		Threshold:       cfg.Verification.MatchThreshold,
		MaxFrames:       cfg.Verification.MaxFrames,
		MaxEmbedRetries: cfg.Verification.MaxEmbedRetries,
		FrameTimeout:    cfg.Verification.FrameTimeout,
	})
	registry := session.NewRegistry(store, cfg.Verification.SessionTTL)

	scheduler := startPurgeJob(registry)
	defer scheduler.Stop()

	server := web.NewServer(cfg, store, registry, engine, index)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facegate on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
