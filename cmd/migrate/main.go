// Command migrate applies and scaffolds the PostgreSQL ledger schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// New files are scaffolded next to the embedded schema
const defaultCreateDir = "internal/infrastructure/migration/sql"

const usage = `Procurement ledger schema tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  steps <n>             Apply n migrations, negative n rolls back
  version               Show the applied schema version
  force <version>       Mark version applied without running it
  create <name> [desc]  Scaffold a new migration pair
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: embedded schema)
  -log-level string     debug, info, warn or error (default: info)

The database is read from LEDGER_DATABASE_* like the server, e.g.
  LEDGER_DATABASE_HOST=db LEDGER_DATABASE_DBNAME=ledger migrate up
  migrate steps -1
  migrate create add_payment_index "Index payments by order"`

var errUsage = errors.New("usage")

// cli holds what every command needs.
type cli struct {
	dir  string
	args []string
	log  *zap.Logger
}

// fileCommands work without a database.
var fileCommands = map[string]func(*cli) error{
	"create": (*cli).create,
	"list":   (*cli).list,
}

// schemaCommands run against the configured database.
var schemaCommands = map[string]func(*cli, *migration.Migrator) error{
	"up":      func(_ *cli, m *migration.Migrator) error { return m.Up() },
	"down":    func(_ *cli, m *migration.Migrator) error { return m.Down() },
	"steps":   (*cli).steps,
	"version": (*cli).version,
	"force":   (*cli).force,
}

func main() {
	dir := flag.String("path", "", "migrations directory (default: embedded schema)")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	c := &cli{args: flag.Args(), log: log}
	if *dir != "" {
		if c.dir, err = filepath.Abs(*dir); err != nil {
			log.Fatal("Resolve migrations path", zap.Error(err))
		}
	}

	if err := c.run(); err != nil {
		if errors.Is(err, errUsage) {
			log.Error(err.Error())
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", c.args[0]), zap.Error(err))
	}
}

func (c *cli) run() error {
	name := c.args[0]
	c.log.Info("Migration command", zap.String("command", name), zap.String("source", c.source()))

	if cmd, ok := fileCommands[name]; ok {
		return cmd(c)
	}
	cmd, ok := schemaCommands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("driver %q: sqlite databases are migrated by the server on startup", cfg.Database.Driver)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, c.dir, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			c.log.Warn("Close migrator", zap.Error(cerr))
		}
	}()
	return cmd(c, m)
}

func (c *cli) source() string {
	if c.dir == "" {
		return "embedded"
	}
	return c.dir
}

// intArg parses the argument following the command.
func (c *cli) intArg(what string) (int, error) {
	if len(c.args) < 2 {
		return 0, fmt.Errorf("%w: %s %s required", errUsage, c.args[0], what)
	}
	n, err := strconv.Atoi(c.args[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", errUsage, what, c.args[1])
	}
	return n, nil
}

func (c *cli) steps(m *migration.Migrator) error {
	n, err := c.intArg("step count")
	if err != nil {
		return err
	}
	return m.Steps(n)
}

func (c *cli) force(m *migration.Migrator) error {
	v, err := c.intArg("version")
	if err != nil {
		return err
	}
	return m.Force(v)
}

func (c *cli) version(m *migration.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if v == 0 {
		c.log.Info("No migrations applied")
		return nil
	}
	c.log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	return nil
}

func (c *cli) create() error {
	if len(c.args) < 2 {
		return fmt.Errorf("%w: create <name> [description]", errUsage)
	}
	var description string
	if len(c.args) > 2 {
		description = c.args[2]
	}
	dir := c.dir
	if dir == "" {
		dir = defaultCreateDir
	}
	mf, err := migration.CreateMigration(dir, c.args[1], description)
	if err != nil {
		return err
	}
	c.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath),
	)
	return nil
}

func (c *cli) list() error {
	var names []string
	var err error
	if c.dir == "" {
		names, err = migration.EmbeddedMigrations()
	} else {
		names, err = migration.ListMigrations(c.dir)
	}
	if err != nil {
		return err
	}
	c.log.Info("Available migrations", zap.Int("count", len(names)))
	for _, n := range names {
		fmt.Println("  -", n)
	}
	return nil
}
