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
		log.Println("creating content schema...")
		return mghelper.CreateDBSchema(ctx, db, contentpg.SchemaName)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping content schema...")
		return mghelper.DropDBSchema(ctx, db, contentpg.SchemaName)
	})
}
