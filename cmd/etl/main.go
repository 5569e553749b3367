package main

import (
	"flag"
	"log"

	"github.com/moviesearch/movies-etl/pkg/app"
	etlapp "github.com/moviesearch/movies-etl/pkg/app/etl"
	"github.com/moviesearch/movies-etl/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single synchronization cycle and exit")
	flag.Parse()

	cfg, err := config.LoadETL(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var r app.Runner = etlapp.NewServer(cfg, etlapp.WithOnce(*once))
	if err := r.Run(); err != nil {
		log.Fatalf("movies-etl stopped: %v", err)
	}
}
