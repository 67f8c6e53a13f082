package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/paykit-wallet/paykitd/internal/config"
	"github.com/paykit-wallet/paykitd/internal/directory"
	"github.com/paykit-wallet/paykitd/internal/http_api"
	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/internal/payment"
	"github.com/paykit-wallet/paykitd/internal/paykit"
	"github.com/paykit-wallet/paykitd/internal/repository"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "paykitd",
		Usage: "Paykitd runs auto-pay, payment requests and subscriptions for a wallet",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.StringFlag{Name: "database-driver", Aliases: []string{"r"}, Usage: "Database driver (postgres, sqlite, memory)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "owner-pubkey", Aliases: []string{"o"}, Usage: "Public key of this wallet"},
			&cli.StringFlag{Name: "homeserver-url", Aliases: []string{"s"}, Usage: "Homeserver URL, in-process directory when empty"},
			&cli.StringFlag{Name: "noise-host", Usage: "Noise host to publish at startup"},
			&cli.StringFlag{Name: "payment-service-url", Aliases: []string{"b"}, Usage: "Payment service URL"},
			&cli.Uint64Flag{Name: "default-daily-limit", Aliases: []string{"l"}, Usage: "Default global daily limit in sats"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("database-driver") {
		cfg.DatabaseDriver = c.String("database-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("owner-pubkey") {
		cfg.OwnerPubkey = c.String("owner-pubkey")
	}
	if c.IsSet("homeserver-url") {
		cfg.HomeserverURL = c.String("homeserver-url")
	}
	if c.IsSet("noise-host") {
		cfg.NoiseHost = c.String("noise-host")
	}
	if c.IsSet("payment-service-url") {
		cfg.PaymentServiceURL = c.String("payment-service-url")
	}
	if c.IsSet("default-daily-limit") {
		cfg.DefaultDailyLimitSats = c.Uint64("default-daily-limit")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	// Initialize database
	db, err := openRepository(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize directory and payment service
	dir := openDirectory(cfg, log)
	executor := payment.NewClient(cfg.PaymentServiceURL, cfg.PaymentTimeout, log)

	// Create Paykit instance
	paykitApp := paykit.NewPaykit(db, dir, executor, metrics.NewRecorder(), log, cfg)
	apiServer := http_api.NewHTTPServer(paykitApp, cfg.APIPort, log)

	if err := paykitApp.Start(); err != nil {
		return multierr.Append(fmt.Errorf("failed to start paykit: %v", err), db.Close())
	}
	go apiServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received signal, shutting down", "signal", sig.String())

	err = apiServer.Shutdown()
	paykitApp.Stop()
	return multierr.Append(err, db.Close())
}

func openRepository(cfg *config.Config, log *logger.Logger) (models.Repository, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	case config.DriverSQLite:
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	case config.DriverMemory:
		log.Warn("Using in-memory database, state is lost on exit")
		return repository.NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func openDirectory(cfg *config.Config, log *logger.Logger) models.DirectoryStore {
	if cfg.HomeserverURL == "" {
		log.Warn("HOMESERVER_URL not set, using in-process directory")
		return directory.NewMemory()
	}
	opts := []directory.HomeserverOption{}
	if cfg.HomeserverSession != "" {
		opts = append(opts, directory.WithSession(cfg.HomeserverSession))
	}
	if cfg.DirectoryRateLimit > 0 {
		burst := int(cfg.DirectoryRateLimit)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, directory.WithRateLimit(cfg.DirectoryRateLimit, burst))
	}
	return directory.NewHomeserverClient(cfg.HomeserverURL, cfg.DirectoryTimeout, log, opts...)
}
