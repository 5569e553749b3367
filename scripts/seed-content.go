//go:build ignore
// +build ignore

// Seed Content
//
// This script fills the content schema with a small generated catalog so the
// sync service has something to index:
// - genres, persons and film works
// - every film linked to two genres and three persons (actor, director, writer)
// - optional -touch to bump updated_at of existing persons, which makes the
//   next sync cycle fan out to their films
//
// Usage:
//   go run scripts/seed-content.go -config config.yaml -films 50

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/moviesearch/movies-etl/pkg/config"
	"github.com/moviesearch/movies-etl/pkg/content"
	contentpg "github.com/moviesearch/movies-etl/pkg/content/pg"
	"github.com/moviesearch/movies-etl/pkg/pgutil"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to config file")
	films      = flag.Int("films", 20, "Number of film works to create")
	touch      = flag.Bool("touch", false, "Only bump updated_at of existing persons")
	dryRun     = flag.Bool("dry-run", false, "Show what would be done without making changes")
)

var genreNames = []string{"Action", "Comedy", "Drama", "Sci-Fi", "Thriller", "Documentary"}

func main() {
	flag.Parse()

	cfg, err := config.LoadETL(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	fmt.Println(">>> Connecting to PostgreSQL...")
	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Printf("    Connected to %s\n\n", cfg.Database.GetConnectionString(true))

	if *touch {
		touchPersons(ctx, db)
		return
	}

	now := time.Now().UTC()
	rng := rand.New(rand.NewSource(now.UnixNano()))

	genres := make([]*contentpg.GenreDao, 0, len(genreNames))
	for _, name := range genreNames {
		genres = append(genres, &contentpg.GenreDao{ID: uuid.New(), Name: name})
	}

	var (
		filmRows   []*contentpg.FilmWorkDao
		personRows []*contentpg.PersonDao
		genreLinks []*contentpg.GenreFilmWorkDao
		roleLinks  []*contentpg.PersonFilmWorkDao
	)
	roles := []content.Role{content.RoleActor, content.RoleDirector, content.RoleWriter}

	for i := 0; i < *films; i++ {
		rating := float64(rng.Intn(100)) / 10
		film := &contentpg.FilmWorkDao{
			ID:     uuid.New(),
			Title:  fmt.Sprintf("Generated Film #%d", i+1),
			Rating: &rating,
			Type:   "movie",
		}
		filmRows = append(filmRows, film)

		first := rng.Intn(len(genres))
		second := (first + 1 + rng.Intn(len(genres)-1)) % len(genres)
		for _, g := range []*contentpg.GenreDao{genres[first], genres[second]} {
			genreLinks = append(genreLinks, &contentpg.GenreFilmWorkDao{ID: uuid.New(), FilmWorkID: film.ID, GenreID: g.ID})
		}

		for _, role := range roles {
			person := &contentpg.PersonDao{ID: uuid.New(), FullName: fmt.Sprintf("Person %d-%s", i+1, role)}
			personRows = append(personRows, person)
			roleLinks = append(roleLinks, &contentpg.PersonFilmWorkDao{
				ID: uuid.New(), FilmWorkID: film.ID, PersonID: person.ID, Role: string(role),
			})
		}
	}

	fmt.Printf(">>> Seeding %d genres, %d persons, %d film works\n", len(genres), len(personRows), len(filmRows))
	if *dryRun {
		fmt.Println(">>> DRY RUN MODE - No changes made")
		return
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rows := range []any{&genres, &personRows, &filmRows, &genreLinks, &roleLinks} {
			if _, err := tx.NewInsert().Model(rows).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fatalf("Failed to seed content: %v", err)
	}
	fmt.Println("    Done")
}

func touchPersons(ctx context.Context, db *bun.DB) {
	if *dryRun {
		fmt.Println(">>> DRY RUN MODE - Would bump updated_at of every person")
		return
	}
	res, err := db.NewUpdate().
		Model((*contentpg.PersonDao)(nil)).
		Set("updated_at = now()").
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		fatalf("Failed to touch persons: %v", err)
	}
	n, _ := res.RowsAffected()
	fmt.Printf(">>> Touched %d persons\n", n)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
