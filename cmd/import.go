package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/postgres"
	"github.com/facegate/facegate/internal/embedding"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-register subjects from a directory of photos",
	Long: `Register every photo in a directory as a subject.
File names follow the pattern <id>__<name>.jpg, for example
"s1024__Jana Novakova.jpg". Each photo must contain exactly one face.
Already-registered IDs are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("department", "", "Department recorded for all imported subjects")
	importCmd.Flags().Bool("dry-run", false, "List what would be imported without writing")
}

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// parsePhotoName splits "<id>__<name>.jpg" into its parts. Files without the
// separator use the base name as both ID and name.
func parsePhotoName(path string) (id, name string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, name, ok := strings.Cut(base, "__"); ok && id != "" && name != "" {
		return id, name
	}
	return base, base
}

// listPhotoFiles returns the photo files in the directory, non-recursive.
func listPhotoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if photoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	department := mustGetString(cmd, "department")
	dryRun := mustGetBool(cmd, "dry-run")

	files, err := listPhotoFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No photos found, nothing to do")
		return nil
	}

	if dryRun {
		for _, file := range files {
			id, name := parsePhotoName(file)
			fmt.Printf("would import %s as %s (%s)\n", filepath.Base(file), id, name)
		}
		return nil
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.MaxFrameSize)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Registering subjects"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ctx := context.Background()
	var imported, skipped, failed int
	for _, file := range files {
		bar.Add(1)

		id, name := parsePhotoName(file)
		image, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("\n%s: read failed: %v\n", filepath.Base(file), err)
			failed++
			continue
		}

		vector, err := embedder.Embed(ctx, image)
		if err != nil {
			fmt.Printf("\n%s: embedding failed: %v\n", filepath.Base(file), err)
			failed++
			continue
		}

		subject := &database.Subject{
			ID:         id,
			Name:       name,
			Department: department,
			Embedding:  vector,
			CreatedAt:  time.Now(),
		}
		if err := store.Save(ctx, subject); err != nil {
			if errors.Is(err, database.ErrDuplicateSubject) {
				skipped++
				continue
			}
			fmt.Printf("\n%s: save failed: %v\n", filepath.Base(file), err)
			failed++
			continue
		}
		imported++
	}

	fmt.Printf("\nImported %d subjects (%d skipped, %d failed)\n", imported, skipped, failed)
	return nil
}
