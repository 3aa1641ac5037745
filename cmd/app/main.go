package main

import (
	"flag"
	"log"
	"os"

	"FinPulse/internal/di"
	"FinPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// .env, then YAML, then environment overrides
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s instruments=%d sink=%s synthetic_only=%t",
		cfg.Environment, len(cfg.Universe.Symbols), cfg.Sink.Type, cfg.Ingestion.SyntheticOnly)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
