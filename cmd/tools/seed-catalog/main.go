// Command seed-catalog loads movies into the configured store. Without a
// file it seeds the built-in sample catalog; entries whose title already
// exists are skipped, so re-running is safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"cineshelf/internal/models"
	"cineshelf/internal/storage"
)

type catalogFile struct {
	Movies []movieEntry `json:"movies"`
}

type movieEntry struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Genre       models.Genre    `json:"genre"`
	Director    models.Director `json:"director"`
	ImageURL    string          `json:"imageUrl"`
	Featured    bool            `json:"featured"`
	ReleaseYear int             `json:"releaseYear"`
}

func main() {
	dataFile := flag.String("data", "data/cineshelf.json", "path to the JSON dataset")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("CINESHELF_POSTGRES_DSN"), "postgres connection string (takes precedence over -data)")
	catalogPath := flag.String("file", "", "catalog JSON file; omit to seed the built-in sample")
	flag.Parse()

	if err := run(*dataFile, *postgresDSN, *catalogPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dataFile, postgresDSN, catalogPath string) error {
	entries := storage.SampleCatalog()
	if catalogPath != "" {
		loaded, err := loadCatalogFile(catalogPath)
		if err != nil {
			return err
		}
		entries = loaded
	}

	var repo storage.Repository
	if postgresDSN != "" {
		pg, err := storage.NewPostgresRepository(context.Background(), postgresDSN,
			storage.WithPostgresApplicationName("cineshelf-seed"))
		if err != nil {
			return err
		}
		defer pg.Close()
		repo = pg
	} else {
		jsonRepo, err := storage.NewStorage(dataFile)
		if err != nil {
			return err
		}
		repo = jsonRepo
	}

	created, err := storage.SeedCatalog(repo, entries)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d movies (%d already present)\n", created, len(entries)-created)
	return nil
}

func loadCatalogFile(path string) ([]storage.CreateMovieParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	entries := make([]storage.CreateMovieParams, 0, len(file.Movies))
	for _, movie := range file.Movies {
		entries = append(entries, storage.CreateMovieParams{
			Title:       movie.Title,
			Description: movie.Description,
			Genre:       movie.Genre,
			Director:    movie.Director,
			ImageURL:    movie.ImageURL,
			Featured:    movie.Featured,
			ReleaseYear: movie.ReleaseYear,
		})
	}
	return entries, nil
}
