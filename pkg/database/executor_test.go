package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andybasham/aiagent/pkg/cache"
	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/types"
)

type recordedStmt struct {
	db   string
	stmt string
}

type fakeQuerier struct {
	stmts  []recordedStmt
	failOn string // substring that triggers an error
}

func (f *fakeQuerier) Exec(ctx context.Context, db, stmt string) error {
	if f.failOn != "" && strings.Contains(stmt, f.failOn) {
		return errors.New("server rejected statement")
	}
	f.stmts = append(f.stmts, recordedStmt{db: db, stmt: stmt})
	return nil
}

func (f *fakeQuerier) Count(ctx context.Context, db, query string) (int, error) {
	return 0, nil
}

type dbFixture struct {
	cfg   *config.DatabaseConfig
	cache *cache.Cache
	q     *fakeQuerier
	root  string
}

func newDBFixture(t *testing.T) *dbFixture {
	t.Helper()
	root := t.TempDir()
	c, _ := cache.Load(filepath.Join(root, "deploy.json"))

	mk := func(parts ...string) string {
		dir := filepath.Join(append([]string{root}, parts...)...)
		require.NoError(t, os.MkdirAll(dir, 0755))
		return dir
	}

	cfg := &config.DatabaseConfig{
		Host:          "127.0.0.1",
		Port:          3306,
		AdminUsername: "root",
		MainDatabase: &config.DatabaseSection{
			DBName:         "app_main",
			SetupPath:      mk("main", "setup"),
			TablesPath:     mk("main", "tables"),
			ProceduresPath: mk("main", "procedures"),
			DataPath:       mk("main", "data"),
			MigrationPath:  mk("main", "migrations"),
		},
		TenantDatabase: &config.DatabaseSection{
			DBName:        "app_{{WEBID}}",
			TablesPath:    mk("tenant", "tables"),
			MigrationPath: mk("tenant", "migrations"),
		},
	}
	return &dbFixture{cfg: cfg, cache: c, q: &fakeQuerier{}, root: root}
}

func (f *dbFixture) writeScript(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func (f *dbFixture) executor(opts config.Options) *Executor {
	return New(f.q, f.cfg, opts, f.cache, "app", nil, zerolog.Nop())
}

func TestPhaseOrder(t *testing.T) {
	f := newDBFixture(t)
	f.writeScript(t, "main/setup/01_create.sql", "CREATE DATABASE IF NOT EXISTS app_main;")
	f.writeScript(t, "main/tables/01_users.sql", "CREATE TABLE users (id INT);")
	f.writeScript(t, "main/data/01_rows.sql", "INSERT INTO users VALUES (1);")
	f.writeScript(t, "tenant/tables/01_t.sql", "CREATE TABLE t_{{WEBID}} (id INT);")

	x := f.executor(config.Options{})
	tenants := []types.TenantDescriptor{{WebID: "alpha"}, {WebID: "beta"}}
	require.NoError(t, x.Run(context.Background(), tenants))

	var stmts []string
	for _, s := range f.q.stmts {
		stmts = append(stmts, s.stmt)
	}

	require.Len(t, f.q.stmts, 5)
	assert.Contains(t, stmts[0], "CREATE DATABASE")
	assert.Contains(t, stmts[1], "CREATE TABLE users")
	assert.Contains(t, stmts[2], "INSERT INTO users")
	assert.Contains(t, stmts[3], "t_alpha")
	assert.Contains(t, stmts[4], "t_beta")

	// Setup runs unbound; later phases bind their schema.
	assert.Equal(t, "", f.q.stmts[0].db)
	assert.Equal(t, "app_main", f.q.stmts[1].db)
	assert.Equal(t, "app_alpha", f.q.stmts[3].db)
	assert.Equal(t, "app_beta", f.q.stmts[4].db)

	assert.Equal(t, 5, x.Executed)
}

func TestIncrementalScriptSkip(t *testing.T) {
	f := newDBFixture(t)
	f.writeScript(t, "main/tables/01_users.sql", "CREATE TABLE users (id INT);")

	x := f.executor(config.Options{})
	require.NoError(t, x.Run(context.Background(), nil))
	require.Equal(t, 1, x.Executed)

	// Unchanged file skips on the next run.
	f.q.stmts = nil
	x = f.executor(config.Options{})
	require.NoError(t, x.Run(context.Background(), nil))
	assert.Equal(t, 0, x.Executed)
	assert.Equal(t, 1, x.Skipped)
	assert.Empty(t, f.q.stmts)

	// ignore_cache forces re-execution.
	x = f.executor(config.Options{IgnoreCache: true})
	require.NoError(t, x.Run(context.Background(), nil))
	assert.Equal(t, 1, x.Executed)
}

func TestFailureSkipsCacheAndLaterPhases(t *testing.T) {
	f := newDBFixture(t)
	bad := f.writeScript(t, "main/tables/01_bad.sql", "CREATE TABLE broken;")
	f.writeScript(t, "main/data/01_later.sql", "INSERT INTO x VALUES (1);")
	f.q.failOn = "broken"

	x := f.executor(config.Options{})
	err := x.Run(context.Background(), nil)

	var sqlErr *types.SQLError
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, bad, sqlErr.File)
	assert.Equal(t, 1, sqlErr.Statement)

	// Failed file is not cached, later phases never ran.
	info, _ := os.Stat(bad)
	assert.False(t, f.cache.ScriptUpToDate(bad, info.ModTime().Unix()))
	for _, s := range f.q.stmts {
		assert.NotContains(t, s.stmt, "INSERT INTO x")
	}
}

func TestMigrationOnly(t *testing.T) {
	f := newDBFixture(t)
	f.writeScript(t, "main/tables/01_users.sql", "CREATE TABLE users (id INT);")
	f.writeScript(t, "main/migrations/001_add_col.sql", "ALTER TABLE users ADD col INT;")
	f.writeScript(t, "tenant/migrations/001_add_col.sql", "ALTER TABLE t ADD col_{{WEBID}} INT;")

	x := f.executor(config.Options{MigrationOnly: true})
	require.NoError(t, x.Run(context.Background(), []types.TenantDescriptor{{WebID: "alpha"}}))

	require.Len(t, f.q.stmts, 2)
	assert.Contains(t, f.q.stmts[0].stmt, "ALTER TABLE users")
	assert.Contains(t, f.q.stmts[1].stmt, "col_alpha")
}

func TestCleanInstallDropsDatabases(t *testing.T) {
	f := newDBFixture(t)
	f.writeScript(t, "main/tables/01_users.sql", "CREATE TABLE users (id INT);")

	x := f.executor(config.Options{CleanInstall: true})
	require.NoError(t, x.Run(context.Background(), []types.TenantDescriptor{{WebID: "alpha"}}))

	assert.Contains(t, f.q.stmts[0].stmt, "DROP DATABASE IF EXISTS `app_main`")
	assert.Contains(t, f.q.stmts[1].stmt, "DROP DATABASE IF EXISTS `app_alpha`")
}

func TestFilesSortedWithinDirectory(t *testing.T) {
	f := newDBFixture(t)
	f.writeScript(t, "main/tables/10_second.sql", "CREATE TABLE second (id INT);")
	f.writeScript(t, "main/tables/01_first.sql", "CREATE TABLE first (id INT);")
	f.writeScript(t, "main/tables/README.txt", "not sql")

	x := f.executor(config.Options{})
	require.NoError(t, x.Run(context.Background(), nil))

	require.Len(t, f.q.stmts, 2)
	assert.Contains(t, f.q.stmts[0].stmt, "first")
	assert.Contains(t, f.q.stmts[1].stmt, "second")
}

func TestMissingDirectoryFails(t *testing.T) {
	f := newDBFixture(t)
	f.cfg.MainDatabase.TablesPath = filepath.Join(f.root, "absent")

	x := f.executor(config.Options{})
	err := x.Run(context.Background(), nil)
	var sqlErr *types.SQLError
	assert.ErrorAs(t, err, &sqlErr)
}

func TestEmptyConfigSectionsAreNoops(t *testing.T) {
	f := newDBFixture(t)
	cfg := &config.DatabaseConfig{AdminUsername: "root"}
	x := New(f.q, cfg, config.Options{}, f.cache, "app", nil, zerolog.Nop())
	require.NoError(t, x.Run(context.Background(), nil))
	assert.Empty(t, f.q.stmts)
}

func TestTenantDataScriptsRunUnbound(t *testing.T) {
	f := newDBFixture(t)
	dir := filepath.Join(f.root, "cross")
	require.NoError(t, os.MkdirAll(dir, 0755))
	f.cfg.TenantDataScripts = &config.DataScripts{DataPath: dir}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_link.sql"),
		[]byte("USE app_main;\nINSERT INTO links VALUES (1);"), 0644))

	x := f.executor(config.Options{})
	require.NoError(t, x.Run(context.Background(), nil))

	for _, s := range f.q.stmts {
		assert.Equal(t, "", s.db, "cross-database scripts must not pre-bind a schema")
	}
}
