package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/template"
	"github.com/andybasham/aiagent/pkg/types"
)

// Runner executes emitted statements. Satisfied by the database client.
type Runner interface {
	Exec(ctx context.Context, db, stmt string) error
	Count(ctx context.Context, db, query string) (int, error)
}

// Engine expands seed table specs over the parent JSON documents and runs
// the resulting INSERTs. A failing spec is abandoned; later specs still
// run, and the combined error is returned at the end.
type Engine struct {
	runner   Runner
	appName  string
	mainDB   string
	tenantDB string // db_name template carrying {{WEBID}}
	broker   *events.Broker
	logger   zerolog.Logger
}

// New builds a seed engine. tenantDB is the tenant database name template.
func New(runner Runner, appName, mainDB, tenantDB string, broker *events.Broker, logger zerolog.Logger) *Engine {
	return &Engine{
		runner:   runner,
		appName:  appName,
		mainDB:   mainDB,
		tenantDB: tenantDB,
		broker:   broker,
		logger:   logger,
	}
}

// parent is one loaded seed JSON document.
type parent struct {
	path  string
	doc   map[string]any
	webid string
}

// LoadTenants derives the tenant set from the seed JSON directory. Each
// file yields one tenant identified by its required top-level webid;
// iteration order is sorted filename.
func LoadTenants(dir, ext string) ([]types.TenantDescriptor, error) {
	parents, err := loadParents(dir, ext)
	if err != nil {
		return nil, err
	}
	tenants := make([]types.TenantDescriptor, 0, len(parents))
	for _, p := range parents {
		tenants = append(tenants, types.TenantDescriptor{WebID: p.webid, SourceFile: p.path})
	}
	return tenants, nil
}

func loadParents(dir, ext string) ([]*parent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	parents := make([]*parent, 0, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, &types.SeedError{File: file, Err: err}
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &types.SeedError{File: file, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		webid, _ := doc["webid"].(string)
		if webid == "" {
			return nil, &types.SeedError{File: file, Err: errors.New("missing required field webid")}
		}
		parents = append(parents, &parent{path: file, doc: doc, webid: webid})
	}
	return parents, nil
}

// Run processes every spec against every parent document in
// sorted-filename order. Returns the number of INSERTs executed.
func (e *Engine) Run(ctx context.Context, specs []config.SeedTableSpec, dir, ext string, tenants []types.TenantDescriptor) (int, error) {
	if dir == "" {
		return 0, nil
	}
	parents, err := loadParents(dir, ext)
	if err != nil {
		return 0, err
	}

	inserted := 0
	var failed []error
	for i := range specs {
		spec := &specs[i]
		n, err := e.runSpec(ctx, spec, parents)
		inserted += n
		if err != nil {
			e.logger.Error().Err(err).Str("table", spec.TableName).Msg("Seed spec failed, continuing with next")
			failed = append(failed, err)
		}
	}
	return inserted, errors.Join(failed...)
}

func (e *Engine) runSpec(ctx context.Context, spec *config.SeedTableSpec, parents []*parent) (int, error) {
	raw, err := os.ReadFile(spec.TableScriptFile)
	if err != nil {
		return 0, &types.SeedError{Table: spec.TableName, File: spec.TableScriptFile, Err: err}
	}
	region, err := ExtractTemplate(string(raw), spec.BeginMark, spec.EndMark)
	if err != nil {
		return 0, &types.SeedError{Table: spec.TableName, File: spec.TableScriptFile, Err: err}
	}

	if spec.CheckExistsQuery != "" && spec.ArrayField != "" {
		e.logger.Warn().
			Str("table", spec.TableName).
			Msg("check_exists_query combined with array_field: existing records skip the entire array")
	}

	inserted := 0
	for _, p := range parents {
		n, err := e.runParent(ctx, spec, region, p)
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (e *Engine) runParent(ctx context.Context, spec *config.SeedTableSpec, region string, p *parent) (int, error) {
	db, webid := e.route(spec, p)

	tmpl := string(template.ExpandSQL([]byte(region), e.appName, webid))

	if spec.CheckExistsQuery != "" {
		query, err := Substitute(string(template.ExpandSQL([]byte(spec.CheckExistsQuery), e.appName, webid)), spec.Variables, Scope{Parent: p.doc})
		if err != nil {
			return 0, &types.SeedError{Table: spec.TableName, File: p.path, Err: err}
		}
		count, err := e.runner.Count(ctx, db, query)
		if err != nil {
			return 0, &types.SeedError{Table: spec.TableName, File: p.path, Err: err}
		}
		if count >= 1 {
			e.logger.Debug().Str("table", spec.TableName).Str("file", p.path).Msg("Records exist, seed skipped")
			return 0, nil
		}
	}

	scopes, err := e.scopes(spec, p)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, sc := range scopes {
		stmt, err := Substitute(tmpl, spec.Variables, sc)
		if err != nil {
			return inserted, &types.SeedError{Table: spec.TableName, File: p.path, Err: err}
		}
		if err := e.runner.Exec(ctx, db, stmt); err != nil {
			return inserted, &types.SeedError{Table: spec.TableName, File: p.path, Err: err}
		}
		inserted++
		if e.broker != nil {
			e.broker.Publish(events.EventSeedInserted, spec.TableName, p.webid)
		}
	}
	return inserted, nil
}

// route selects the target database. Tenant-scoped specs go to the
// parent's own tenant database: the parent file is the tenant, its webid
// binds {{WEBID}}.
func (e *Engine) route(spec *config.SeedTableSpec, p *parent) (db, webid string) {
	if spec.Database == "tenant" {
		name := string(template.ExpandSQL([]byte(e.tenantDB), e.appName, p.webid))
		return name, p.webid
	}
	return e.mainDB, p.webid
}

// scopes builds one emission scope per expansion step: one for the parent
// alone, one per array element, or one per nested element.
func (e *Engine) scopes(spec *config.SeedTableSpec, p *parent) ([]Scope, error) {
	if spec.ArrayField == "" {
		return []Scope{{Parent: p.doc}}, nil
	}

	arrValue, ok := lookupPath(p.doc, spec.ArrayField)
	if !ok {
		// No array in this parent means nothing to seed.
		return nil, nil
	}
	arr, ok := arrValue.([]any)
	if !ok {
		return nil, &types.SeedError{Table: spec.TableName, File: p.path, Err: fmt.Errorf("field %s is not an array", spec.ArrayField)}
	}

	var scopes []Scope
	for i, elem := range arr {
		if spec.NestedArrayField == "" {
			scopes = append(scopes, Scope{Parent: p.doc, Inner: elem})
			continue
		}
		outer, ok := elem.(map[string]any)
		if !ok {
			return nil, &types.SeedError{Table: spec.TableName, File: p.path, Err: fmt.Errorf("%s[%d] is not an object", spec.ArrayField, i)}
		}
		nestedValue, ok := outer[spec.NestedArrayField]
		if !ok {
			continue
		}
		nested, ok := nestedValue.([]any)
		if !ok {
			return nil, &types.SeedError{Table: spec.TableName, File: p.path, Err: fmt.Errorf("%s[%d].%s is not an array", spec.ArrayField, i, spec.NestedArrayField)}
		}
		for _, inner := range nested {
			scopes = append(scopes, Scope{Parent: p.doc, Outer: outer, Inner: inner})
		}
	}
	return scopes, nil
}
