package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/utilitybill/backend/internal/infrastructure/config"
	"github.com/utilitybill/backend/internal/infrastructure/logger"
	"github.com/utilitybill/backend/internal/infrastructure/migration"
	"github.com/utilitybill/backend/migrations"
	"go.uber.org/zap"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (default: the set compiled into the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout", Service: "billing-migrate"})
	defer func() { _ = log.Sync() }()

	switch command {
	case "create":
		runCreate(log, migrationsPath, args[1:])
		return
	case "list":
		runList(log, migrationsPath)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	m, err := migration.New(db, migrations.FS, migrationsPath, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		n := mustInt(log, args, "step <n>")
		err = m.Steps(n)
	case "goto":
		v := mustInt(log, args, "goto <version>")
		if v < 0 {
			log.Fatal("Version must not be negative", zap.Int("version", v))
		}
		err = m.GoTo(uint(v))
	case "force":
		err = m.Force(mustInt(log, args, "force <version>"))
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func runCreate(log *zap.Logger, dir string, args []string) {
	if len(args) == 0 {
		log.Fatal("Migration name required. Usage: migrate -path <dir> create <name> [description]")
	}
	if dir == "" {
		dir = "migrations"
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		log.Fatal("Failed to create migration", zap.Error(err))
	}
	log.Info("Migration created",
		zap.Uint("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
}

func runList(log *zap.Logger, dir string) {
	if dir == "" {
		dir = "migrations"
	}
	list, err := migration.ListMigrations(dir)
	if err != nil {
		log.Fatal("Failed to list migrations", zap.Error(err))
	}
	for _, mi := range list {
		fmt.Printf("  %06d  %-40s up=%t down=%t\n", mi.Version, mi.Name, mi.HasUp, mi.HasDown)
	}
}

func mustInt(log *zap.Logger, args []string, usage string) int {
	if len(args) < 2 {
		log.Fatal("Argument required. Usage: migrate " + usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatal("Invalid number", zap.String("value", args[1]))
	}
	return n
}

func printUsage() {
	fmt.Println(`Utility billing database migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the applied version
  force <version>       Mark a version as applied without running it
  create <name> [desc]  Write the next numbered up/down pair
  list                  List migrations in -path

Flags:
  -path string          Migrations directory; unset uses the embedded set
  -log-level string     debug, info, warn, error (default: info)

Environment:
  BILLING_DATABASE_HOST, BILLING_DATABASE_PORT, BILLING_DATABASE_USER,
  BILLING_DATABASE_PASSWORD, BILLING_DATABASE_DBNAME, BILLING_DATABASE_SSLMODE`)
}
