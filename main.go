package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/internal/database"
	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/repository"
	"github.com/customeros/sitestack/server"
	"github.com/customeros/sitestack/services"
)

func main() {
	app := &cli.App{
		Name:  "sitestack",
		Usage: "custom domain provisioning and verification for hosted sites",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:  "verify",
				Usage: "Run one verification attempt for a domain and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "domain id", Required: true},
					&cli.IntFlag{Name: "attempt", Usage: "attempt number used for retry backoff", Value: 1},
					&cli.DurationFlag{Name: "timeout", Usage: "overall timeout", Value: time.Minute},
				},
				Action: verify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return cfg, db, nil
}

func migrate(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runServer(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("SiteStack starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func verify(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	svcs, err := services.InitServices(cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return err
	}
	defer svcs.EventsService.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	result, err := svcs.DomainService.Verify(ctx, c.String("id"), "", c.Int("attempt"))
	if err != nil {
		return err
	}

	// notifications for a fresh verification are published in the background
	if err := svcs.Background.Wait(ctx); err != nil {
		appLogger.Warnf("Background tasks did not finish: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
