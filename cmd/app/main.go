package main

import (
	"flag"
	"fmt"
	"os"

	"EntryGate/internal/di"
	"EntryGate/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entrygate: %v\n", err)
		os.Exit(2)
	}
	if *check {
		fmt.Printf("config ok: env=%s backend=%s kafka=%t feed=%t clickhouse=%t\n",
			cfg.Environment, cfg.Conditions.Backend, cfg.Kafka.Enabled, cfg.Feed.Enabled, cfg.ClickHouse.Enabled)
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "entrygate: init: %v\n", err)
		os.Exit(1)
	}

	// Blocks until SIGINT or SIGTERM.
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "entrygate: %v\n", err)
		os.Exit(1)
	}
}
