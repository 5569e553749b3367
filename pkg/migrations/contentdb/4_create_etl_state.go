package contentdb

import (
	"context"
	"log"

	mghelper "github.com/moviesearch/movies-etl/pkg/pgutil/migrations"
	"github.com/moviesearch/movies-etl/pkg/state"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating etl_state table...")
		return mghelper.CreateSchema(ctx, db, &state.StateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping etl_state table...")
		return mghelper.DropTables(ctx, db, &state.StateDao{})
	})
}
