//go:build ignore
// +build ignore

// Check Index
//
// Compares the number of rows of every source table with the number of
// documents in the matching search index and prints the stored checkpoints.
// Exits non-zero when an index lags behind its table.
//
// Usage:
//   go run scripts/check-index.go -config config.yaml

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/moviesearch/movies-etl/pkg/config"
	"github.com/moviesearch/movies-etl/pkg/content"
	contentpg "github.com/moviesearch/movies-etl/pkg/content/pg"
	"github.com/moviesearch/movies-etl/pkg/pgutil"
	"github.com/moviesearch/movies-etl/pkg/search"
	"github.com/moviesearch/movies-etl/pkg/state"
)

var configPath = flag.String("config", "config.yaml", "Path to config file")

var models = map[content.EntityType]any{
	content.FilmWork: (*contentpg.FilmWorkDao)(nil),
	content.Person:   (*contentpg.PersonDao)(nil),
	content.Genre:    (*contentpg.GenreDao)(nil),
}

func main() {
	flag.Parse()

	cfg, err := config.LoadETL(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	es, err := search.NewClient(&cfg.Elasticsearch)
	if err != nil {
		fatalf("Failed to create search client: %v", err)
	}

	lagging := 0
	fmt.Printf("%-10s %-8s %10s %10s\n", "ENTITY", "INDEX", "ROWS", "DOCS")
	for _, entity := range content.EntityTypes {
		rows, err := db.NewSelect().Model(models[entity]).Count(ctx)
		if err != nil {
			fatalf("Failed to count %s: %v", entity, err)
		}
		docs, err := countDocs(ctx, es.Count, entity.Index())
		if err != nil {
			fatalf("Failed to count %s: %v", entity.Index(), err)
		}
		fmt.Printf("%-10s %-8s %10d %10d\n", entity, entity.Index(), rows, docs)
		if docs < rows {
			lagging++
		}
	}

	var storage state.Storage
	if cfg.State.Backend == config.StateBackendPostgres {
		storage = state.NewPGStorage(db)
	} else {
		storage = state.NewJSONFileStorage(cfg.State.FilePath)
	}
	st := state.New(storage)
	fmt.Println()
	for _, entity := range content.EntityTypes {
		wm, err := st.Watermark(ctx, entity)
		if err != nil {
			fatalf("Failed to read checkpoint for %s: %v", entity, err)
		}
		fmt.Printf("%-10s last update %s (last id %s)\n", entity, wm.UpdatedAt.Format("2006-01-02T15:04:05.000000Z07:00"), wm.LastID)
	}

	if lagging > 0 {
		fmt.Printf("\n%d index(es) behind their table\n", lagging)
		os.Exit(1)
	}
}

func countDocs(ctx context.Context, count esapi.Count, index string) (int, error) {
	res, err := count(count.WithContext(ctx), count.WithIndex(index))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("count %s: %s", index, res.Status())
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
