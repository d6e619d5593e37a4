package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/cache"
	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/seed"
	"github.com/andybasham/aiagent/pkg/template"
	"github.com/andybasham/aiagent/pkg/types"
)

// Executor drives the ordered database phases of a deployment plan through
// one administrative connection. Phase order in normal mode: main database
// directories, per-tenant directories (tenant iteration order is sorted
// seed filename), one-shot tenant data scripts, then seed tables. In
// migration mode only migration directories run.
type Executor struct {
	q       Querier
	cfg     *config.DatabaseConfig
	opts    config.Options
	cache   *cache.Cache
	appName string
	broker  *events.Broker
	logger  zerolog.Logger

	// Stats accumulate across the run for the summary.
	Executed int
	Skipped  int
	Inserted int
}

// New builds an executor over an open connection.
func New(q Querier, cfg *config.DatabaseConfig, opts config.Options, c *cache.Cache, appName string, broker *events.Broker, logger zerolog.Logger) *Executor {
	return &Executor{
		q:       q,
		cfg:     cfg,
		opts:    opts,
		cache:   c,
		appName: appName,
		broker:  broker,
		logger:  logger,
	}
}

func (x *Executor) publish(t events.EventType, path, msg string) {
	if x.broker != nil {
		x.broker.Publish(t, path, msg)
	}
}

// Run executes every database phase. The first SQL error aborts the
// containing file and skips all subsequent phases.
func (x *Executor) Run(ctx context.Context, tenants []types.TenantDescriptor) error {
	if x.opts.CleanInstall {
		if err := x.dropDatabases(ctx, tenants); err != nil {
			return err
		}
	}

	if x.opts.MigrationOnly {
		return x.runMigrations(ctx, tenants)
	}

	if main := x.cfg.MainDatabase; main != nil {
		if err := x.runSection(ctx, main, ""); err != nil {
			return err
		}
	}

	if tdb := x.cfg.TenantDatabase; tdb != nil {
		for _, tenant := range tenants {
			x.logger.Info().Str("webid", tenant.WebID).Msg("Deploying tenant database")
			if err := x.runSection(ctx, tdb, tenant.WebID); err != nil {
				return err
			}
		}
	}

	if scripts := x.cfg.TenantDataScripts; scripts != nil && scripts.DataPath != "" {
		// These files route themselves with their own USE statements; no
		// default schema is bound.
		if err := x.execDir(ctx, scripts.DataPath, "", "", false); err != nil {
			return err
		}
	}

	return x.runSeeds(ctx, tenants)
}

// runSection executes one database's directories in the fixed order. The
// setup directory runs without a bound schema because its scripts create
// the database; the remaining directories run bound to it.
func (x *Executor) runSection(ctx context.Context, sec *config.DatabaseSection, webid string) error {
	dbName := x.expandName(sec.DBName, webid)

	if err := x.execDir(ctx, sec.SetupPath, "", webid, false); err != nil {
		return err
	}
	for _, dir := range []string{sec.TablesPath, sec.ProceduresPath, sec.DataPath} {
		if err := x.execDir(ctx, dir, dbName, webid, true); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations executes only migration_path directories, main first, then
// each tenant.
func (x *Executor) runMigrations(ctx context.Context, tenants []types.TenantDescriptor) error {
	if main := x.cfg.MainDatabase; main != nil && main.MigrationPath != "" {
		dbName := x.expandName(main.DBName, "")
		if err := x.execDir(ctx, main.MigrationPath, dbName, "", true); err != nil {
			return err
		}
	}
	if tdb := x.cfg.TenantDatabase; tdb != nil && tdb.MigrationPath != "" {
		for _, tenant := range tenants {
			dbName := x.expandName(tdb.DBName, tenant.WebID)
			if err := x.execDir(ctx, tdb.MigrationPath, dbName, tenant.WebID, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// dropDatabases removes every database the run is about to create.
func (x *Executor) dropDatabases(ctx context.Context, tenants []types.TenantDescriptor) error {
	var names []string
	if main := x.cfg.MainDatabase; main != nil && main.DBName != "" {
		names = append(names, x.expandName(main.DBName, ""))
	}
	if tdb := x.cfg.TenantDatabase; tdb != nil && tdb.DBName != "" {
		for _, tenant := range tenants {
			names = append(names, x.expandName(tdb.DBName, tenant.WebID))
		}
	}
	for _, name := range names {
		x.logger.Warn().Str("database", name).Msg("Dropping database for clean install")
		if err := x.q.Exec(ctx, "", fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)); err != nil {
			return &types.SQLError{File: "clean-install", Statement: 1, Err: err}
		}
	}
	return nil
}

// execDir runs every SQL file in a directory in lexicographic filename
// order, honoring the incremental script cache.
func (x *Executor) execDir(ctx context.Context, dir, dbName, webid string, bind bool) error {
	if dir == "" {
		return nil
	}
	files, err := listSQLFiles(dir)
	if err != nil {
		return &types.SQLError{File: dir, Statement: 0, Err: err}
	}

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return &types.SQLError{File: file, Statement: 0, Err: err}
		}
		mtime := info.ModTime().Unix()

		// Per-tenant phases run the same file once per tenant, so the
		// cache entry is keyed by tenant as well.
		cacheKey := file
		if webid != "" {
			cacheKey = file + "@" + webid
		}

		if !x.opts.IgnoreCache && !x.opts.CleanInstall && x.cache.ScriptUpToDate(cacheKey, mtime) {
			x.Skipped++
			x.publish(events.EventScriptSkipped, file, "")
			x.logger.Debug().Str("file", file).Msg("Script unchanged, skipped")
			continue
		}

		raw, err := os.ReadFile(file)
		if err != nil {
			return &types.SQLError{File: file, Statement: 0, Err: err}
		}
		script := template.ExpandSQL(raw, x.appName, webid)

		bound := ""
		if bind {
			bound = dbName
		}
		for i, stmt := range SplitStatements(string(script)) {
			if err := x.q.Exec(ctx, bound, stmt); err != nil {
				return &types.SQLError{File: file, Statement: i + 1, Err: err}
			}
		}

		x.cache.SetScript(cacheKey, mtime)
		x.Executed++
		x.publish(events.EventScriptExecuted, file, "")
		x.logger.Info().Str("file", filepath.Base(file)).Str("database", dbName).Msg("Script executed")
	}
	return nil
}

// runSeeds expands and executes the seed table specs.
func (x *Executor) runSeeds(ctx context.Context, tenants []types.TenantDescriptor) error {
	if len(x.cfg.SeedTables) == 0 {
		return nil
	}

	mainDB := ""
	if x.cfg.MainDatabase != nil {
		mainDB = x.expandName(x.cfg.MainDatabase.DBName, "")
	}
	tenantDB := ""
	if x.cfg.TenantDatabase != nil {
		tenantDB = x.cfg.TenantDatabase.DBName
	}

	eng := seed.New(x.q, x.appName, mainDB, tenantDB, x.broker, x.logger)
	inserted, err := eng.Run(ctx, x.cfg.SeedTables, x.cfg.ConfigFilesPath, x.cfg.ConfigFilesExtension, tenants)
	x.Inserted += inserted
	return err
}

func (x *Executor) expandName(name, webid string) string {
	return string(template.ExpandSQL([]byte(name), x.appName, webid))
}

// listSQLFiles returns the .sql files of a directory, sorted ascending by
// filename.
func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
