package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/config"
	"github.com/iliyamo/eventhub-tickets/internal/database"
	"github.com/iliyamo/eventhub-tickets/internal/logger"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
	"github.com/iliyamo/eventhub-tickets/internal/seed"
)

// seeder prepares a MySQL database: schema, default admin, demo events.
// Running it without a command imports; -d destroys.
func main() {
	_ = godotenv.Load()

	importFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "username", Value: seed.DefaultAdminUsername, Usage: "admin username"},
			&cli.StringFlag{Name: "password", Value: seed.DefaultAdminPassword, Usage: "admin password", EnvVars: []string{"SEED_ADMIN_PASSWORD"}},
			&cli.BoolFlag{Name: "demo-events", Usage: "also create the demo event catalogue"},
		}
	}

	app := &cli.App{
		Name:  "seeder",
		Usage: "Manage the EventHub database",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "d", Usage: "destroy all data instead of importing"},
		}, importFlags()...),
		Action: func(c *cli.Context) error {
			if c.Bool("d") {
				return withDB(c.Context, destroy)
			}
			return withDB(c.Context, importer(c))
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply pending schema migrations",
				Action: func(c *cli.Context) error {
					return withDB(c.Context, func(context.Context, *sql.DB, *zap.Logger, config.Config) error { return nil })
				},
			},
			{
				Name:   "import",
				Usage:  "wipe all data, then create the admin account",
				Flags:  importFlags(),
				Action: func(c *cli.Context) error { return withDB(c.Context, importer(c)) },
			},
			{
				Name:    "destroy",
				Aliases: []string{"d"},
				Usage:   "delete every user, event and ticket",
				Action:  func(c *cli.Context) error { return withDB(c.Context, destroy) },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type dbAction func(ctx context.Context, db *sql.DB, log *zap.Logger, cfg config.Config) error

// withDB connects, migrates and runs fn.
func withDB(ctx context.Context, fn dbAction) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, ServiceName: "seeder", Development: true})
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.Settings{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("schema up to date")
	return fn(ctx, db, log, cfg)
}

func importer(c *cli.Context) dbAction {
	username, password, demo := c.String("username"), c.String("password"), c.Bool("demo-events")
	return func(ctx context.Context, db *sql.DB, log *zap.Logger, cfg config.Config) error {
		if err := database.Destroy(ctx, db); err != nil {
			return err
		}
		if _, err := seed.ImportAdmin(ctx, repository.NewUserRepo(db), username, password, cfg.BcryptCost); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		log.Info("admin created", zap.String("username", repository.NormalizeUsername(username)))

		if demo {
			events, err := seed.ImportEvents(ctx, repository.NewEventRepo(db), time.Now())
			if err != nil {
				return fmt.Errorf("import demo events: %w", err)
			}
			log.Info("demo events created", zap.Int("count", len(events)))
		}
		log.Info("data imported")
		return nil
	}
}

func destroy(ctx context.Context, db *sql.DB, log *zap.Logger, _ config.Config) error {
	if err := database.Destroy(ctx, db); err != nil {
		return err
	}
	log.Info("data destroyed")
	return nil
}
