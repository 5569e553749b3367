package contentdb

import (
	"context"
	"log"

	contentpg "github.com/moviesearch/movies-etl/pkg/content/pg"
	mghelper "github.com/moviesearch/movies-etl/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating film_work, genre and person tables...")
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := mghelper.CreateSchema(ctx, tx,
				&contentpg.FilmWorkDao{},
				&contentpg.GenreDao{},
				&contentpg.PersonDao{},
			); err != nil {
				return err
			}
			// change detection scans by updated_at
			for _, table := range []string{"film_work", "genre", "person"} {
				if err := mghelper.CreateIndexes(ctx, tx, contentpg.SchemaName, table, "updated_at"); err != nil {
					return err
				}
			}
			return mghelper.CreateIndexes(ctx, tx, contentpg.SchemaName, "genre", "name")
		})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping film_work, genre and person tables...")
		return mghelper.DropTables(ctx, db,
			&contentpg.PersonDao{},
			&contentpg.GenreDao{},
			&contentpg.FilmWorkDao{},
		)
	})
}
