package main

import (
	"context"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/moviesearch/movies-etl/pkg/config"
	"github.com/moviesearch/movies-etl/pkg/migrations/contentdb"
	"github.com/moviesearch/movies-etl/pkg/pgutil"
	mghelper "github.com/moviesearch/movies-etl/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.LoadETL(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	db, err := pgutil.ConnectDB(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for content database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, contentdb.Migrations)

	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		mghelper.Exitf("%s", err)
	}
}
