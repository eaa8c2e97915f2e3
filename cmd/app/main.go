package main

import (
	"flag"
	"fmt"
	"log"

	"SessionScope/internal/di"
	"SessionScope/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	log.Printf("env=%s provider=%s", cfg.Environment, cfg.Market.Provider)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	if cfg.ClickHouse.Enabled {
		log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	}
	if cfg.Kafka.Enabled {
		log.Printf("kafka: connected brokers=%v candles=%s reports=%s",
			cfg.Kafka.Brokers, cfg.Kafka.CandlesTopic, cfg.Kafka.ReportTopic)
	}

	return app.Run()
}
