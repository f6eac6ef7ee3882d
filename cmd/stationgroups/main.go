package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/stationgroups/internal/api"
	"github.com/lox/stationgroups/internal/ingest"
	"github.com/lox/stationgroups/internal/logging"
	"github.com/lox/stationgroups/internal/orchestrator"
	"github.com/lox/stationgroups/internal/store"
)

var version = "dev"

type Globals struct {
	EnvFile   kongdotenv.ENVFileConfig `kong:"optional,name=env-file,help='Path to a .env file to load.'"`
	DB        string                   `help:"Path to SQLite database." default:"data/stationgroups.db" env:"STATIONGROUPS_DB"`
	LogLevel  string                   `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
	LogFormat string                   `help:"Log format." default:"text" enum:"text,json" env:"LOG_FORMAT"`
	TxTimeout time.Duration            `help:"Upper bound on a single orchestrated transaction." default:"10s" env:"TX_TIMEOUT"`
}

type CLI struct {
	Globals

	Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the HTTP API and the MQTT telemetry ingester."`
	Migrate MigrateCmd       `cmd:"" help:"Apply database migrations and exit."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

type ServeCmd struct {
	Addr         string `help:"HTTP listen address." default:":8080" env:"HTTP_ADDR"`
	MQTTBroker   string `name:"mqtt-broker" help:"MQTT broker URL, e.g. tcp://localhost:1883. Empty disables telemetry ingest." env:"MQTT_BROKER"`
	MQTTClientID string `name:"mqtt-client-id" help:"MQTT client id." default:"stationgroups" env:"MQTT_CLIENT_ID"`
	MQTTTopic    string `name:"mqtt-topic" help:"MQTT topic carrying station telemetry." default:"stations/+/measurements" env:"MQTT_TOPIC"`
}

type MigrateCmd struct{}

func (g *Globals) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, level, g.LogFormat, version)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// openStore opens the database, waits for it to answer and applies migrations.
func (g *Globals) openStore(ctx context.Context, logger *slog.Logger) (*store.Store, *sql.DB, error) {
	db, err := store.Open(g.DB)
	if err != nil {
		return nil, nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	ping := func() error { return db.PingContext(ctx) }
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready", "path", g.DB, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	st := store.New(db)
	st.SetTxTimeout(g.TxTimeout)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

func (c *MigrateCmd) Run(g *Globals) error {
	logger, err := g.logger()
	if err != nil {
		return err
	}

	st, db, err := g.openStore(context.Background(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	logger.Info("database migrated", "path", g.DB, "version", v)
	return nil
}

func (c *ServeCmd) Run(g *Globals) error {
	logger, err := g.logger()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, db, err := g.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready", "path", g.DB)

	orch := orchestrator.New(st, orchestrator.WithLogger(logger))
	server := api.NewServer(orch, st, c.Addr, logger)

	mqttErr := make(chan error, 1)
	if c.MQTTBroker != "" {
		handler := ingest.NewHandler(orch, st, logger)
		sub := ingest.NewSubscriber(ingest.SubscriberConfig{
			Broker:   c.MQTTBroker,
			ClientID: c.MQTTClientID,
			Topic:    c.MQTTTopic,
		}, handler.Handle, logger)

		go func() {
			if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
				mqttErr <- fmt.Errorf("mqtt subscriber: %w", err)
			}
		}()
	} else {
		logger.Info("telemetry ingest disabled (no --mqtt-broker)")
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(ctx) }()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		logger.Info("shut down")
		return nil
	case err := <-mqttErr:
		cancel()
		<-serverErr
		return err
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("stationgroups"),
		kong.Description("Weather station groups with transactional measurement aggregation."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
