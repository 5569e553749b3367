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
		log.Println("creating genre_film_work and person_film_work tables...")
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.NewCreateTable().
				Model(&contentpg.GenreFilmWorkDao{}).
				IfNotExists().
				ForeignKey(`(film_work_id) REFERENCES "content"."film_work" (id) ON DELETE CASCADE`).
				ForeignKey(`(genre_id) REFERENCES "content"."genre" (id) ON DELETE CASCADE`).
				Exec(ctx)
			if err != nil {
				return err
			}

			_, err = tx.NewCreateTable().
				Model(&contentpg.PersonFilmWorkDao{}).
				IfNotExists().
				ForeignKey(`(film_work_id) REFERENCES "content"."film_work" (id) ON DELETE CASCADE`).
				ForeignKey(`(person_id) REFERENCES "content"."person" (id) ON DELETE CASCADE`).
				Exec(ctx)
			if err != nil {
				return err
			}

			// fan-out joins go from the non-film side
			if err := mghelper.CreateIndexes(ctx, tx, contentpg.SchemaName, "genre_film_work", "genre_id"); err != nil {
				return err
			}
			return mghelper.CreateIndexes(ctx, tx, contentpg.SchemaName, "person_film_work", "person_id")
		})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping genre_film_work and person_film_work tables...")
		return mghelper.DropTables(ctx, db,
			&contentpg.PersonFilmWorkDao{},
			&contentpg.GenreFilmWorkDao{},
		)
	})
}
