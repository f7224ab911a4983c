package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database/postgres"
	"github.com/facegate/facegate/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage attendance sessions from the command line",
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new attendance session and print its shareable link",
	RunE:  runSessionsCreate,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions that have no check-ins",
	RunE:  runSessionsPurge,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)

	sessionsCreateCmd.Flags().String("issuer", "cli", "Issuer recorded on the session")
}

// openRegistry connects to the database and wraps it in a session registry.
func openRegistry(cfg *config.Config) (*session.Registry, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	registry := session.NewRegistry(postgres.NewStore(pool), cfg.Verification.SessionTTL)
	return registry, func() { pool.Close() }, nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	created, err := registry.Create(context.Background(), mustGetString(cmd, "issuer"))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	fmt.Printf("Session token: %s\n", created.Token)
	fmt.Printf("Expires at:    %s\n", created.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Share link:    %s/api/v1/verify/%s\n", cfg.Web.PublicURL, created.Token)
	return nil
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	deleted, err := registry.PurgeExpired(context.Background())
	if err != nil {
		return fmt.Errorf("purging sessions: %w", err)
	}
	fmt.Printf("Purged %d expired sessions\n", deleted)
	return nil
}
