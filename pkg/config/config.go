package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andybasham/aiagent/pkg/template"
	"github.com/andybasham/aiagent/pkg/types"
)

// AgentName is the only agent type this engine recognizes.
const AgentName = "ai-deploy"

// Default seed template markers.
const (
	DefaultBeginMark = "BEGIN AI-AGENT.AI-DEPLOY:"
	DefaultEndMark   = "END AI-AGENT.AI-DEPLOY:"
)

// Config is the deployment document the orchestrator consumes. All string
// values have already been through template pass 1 when Load returns.
type Config struct {
	AgentName            string          `json:"agent_name"`
	ApplicationName      string          `json:"application_name,omitempty"`
	Description          string          `json:"description,omitempty"`
	Warn                 string          `json:"warn,omitempty"`
	Source               EndpointConfig  `json:"source"`
	Destination          EndpointConfig  `json:"destination"`
	Ignore               IgnoreConfig    `json:"ignore,omitempty"`
	Options              Options         `json:"options,omitempty"`
	Website              map[string]any  `json:"website,omitempty"`
	Database             *DatabaseConfig `json:"database,omitempty"`
	FileMappings         []FileMapping   `json:"file_mappings,omitempty"`
	SetPermissionsScript string          `json:"set_permissions_script,omitempty"`
	PreBuild             *PreBuildConfig `json:"pre_build,omitempty"`

	// Path is the absolute location the document was loaded from; the trust
	// cache lives beside it.
	Path string `json:"-"`
}

// EndpointConfig describes one side of the sync.
type EndpointConfig struct {
	Type types.EndpointKind `json:"type"`
	Path string             `json:"path"`

	// windows_share credentials are carried for documentation only; the
	// share must already be mounted.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// ssh
	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty"`
	PrivateKeyFile string `json:"private_key_file,omitempty"`
}

// Address returns a printable identity for error reporting.
func (e *EndpointConfig) Address() string {
	if e.Type == types.EndpointSSH {
		return fmt.Sprintf("ssh://%s@%s:%d%s", e.Username, e.Host, e.Port, e.Path)
	}
	return e.Path
}

// IgnoreConfig holds the three pattern tiers.
type IgnoreConfig struct {
	Files      []string `json:"files,omitempty"`
	Folders    []string `json:"folders,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// Options are the run flags with their documented defaults.
type Options struct {
	DryRun                 bool `json:"dry_run"`
	DeleteExtraFiles       bool `json:"delete_extra_files"`
	Verbose                bool `json:"verbose"`
	IgnoreCache            bool `json:"ignore_cache"`
	CleanInstall           bool `json:"clean_install"`
	MigrationOnly          bool `json:"migration_only"`
	MaxConcurrentTransfers int  `json:"max_concurrent_transfers"`
}

// FileMapping copies one extra file after the main plan, bypassing the
// ignore rules. Source is absolute (read on the agent machine) or relative
// to the source root; Target is relative to the destination root.
type FileMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PreBuildConfig runs a local command before the sync when any watched
// path changed since the last successful build.
type PreBuildConfig struct {
	Command    string   `json:"command"`
	WorkingDir string   `json:"working_dir,omitempty"`
	WatchPaths []string `json:"watch_paths,omitempty"`
}

// DatabaseConfig describes the database half of the deployment.
type DatabaseConfig struct {
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`

	MainDatabase   *DatabaseSection `json:"main_database,omitempty"`
	TenantDatabase *DatabaseSection `json:"tenant_database,omitempty"`

	// TenantDataScripts are one-shot cross-database scripts; each file
	// carries its own USE statements.
	TenantDataScripts *DataScripts `json:"tenant_data_scripts,omitempty"`

	// ConfigFilesPath is the seed JSON directory; each file there is one
	// tenant and one seed parent.
	ConfigFilesPath      string `json:"config_files_path,omitempty"`
	ConfigFilesExtension string `json:"config_files_extension,omitempty"`

	SeedTables []SeedTableSpec `json:"seed_tables,omitempty"`
}

// DatabaseSection is one database's script directories. For the tenant
// section DBName typically contains {{WEBID}}.
type DatabaseSection struct {
	DBName         string `json:"db_name"`
	SetupPath      string `json:"setup_path,omitempty"`
	TablesPath     string `json:"tables_path,omitempty"`
	ProceduresPath string `json:"procedures_path,omitempty"`
	DataPath       string `json:"data_path,omitempty"`
	MigrationPath  string `json:"migration_path,omitempty"`
}

// DataScripts points at a directory of standalone SQL files.
type DataScripts struct {
	DataPath string `json:"data_path"`
}

// SeedTableSpec expands an INSERT template over seed JSON documents.
type SeedTableSpec struct {
	TableName        string            `json:"table_name"`
	Database         string            `json:"database,omitempty"` // "main" or "tenant", default main
	TableScriptFile  string            `json:"table_script_file"`
	BeginMark        string            `json:"begin_mark,omitempty"`
	EndMark          string            `json:"end_mark,omitempty"`
	CheckExistsQuery string            `json:"check_exists_query,omitempty"`
	ArrayField       string            `json:"array_field,omitempty"`
	NestedArrayField string            `json:"nested_array_field,omitempty"`
	Variables        []VariableBinding `json:"variables,omitempty"`
}

// VariableBinding maps one placeholder to a JSON field path. JSONField uses
// dot-notation; the single dot "." denotes the current element itself.
type VariableBinding struct {
	Placeholder  string  `json:"placeholder"`
	JSONField    string  `json:"json_field"`
	FromParent   bool    `json:"from_parent,omitempty"`
	DefaultValue *string `json:"default_value,omitempty"`
}

// Load reads, templates, defaults and validates a configuration document.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	return Parse(raw, path)
}

// Parse decodes a configuration document. Template pass 1 runs on the
// decoded tree so that every string value is expanded, including fields
// this engine treats as opaque.
func Parse(raw []byte, path string) (*Config, error) {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if app, ok := tree["application_name"].(string); ok && app != "" {
		template.ExpandTree(tree, app)
		// The name itself may not reference the placeholder.
		tree["application_name"] = app
	}

	templated, err := json.Marshal(tree)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("re-encode failed: %v", err)}
	}

	cfg := &Config{
		Options: Options{
			DeleteExtraFiles:       true,
			Verbose:                true,
			MaxConcurrentTransfers: 20,
		},
	}
	if err := json.Unmarshal(templated, cfg); err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("invalid document: %v", err)}
	}
	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Type == types.EndpointSSH && c.Source.Port == 0 {
		c.Source.Port = 22
	}
	if c.Destination.Type == types.EndpointSSH && c.Destination.Port == 0 {
		c.Destination.Port = 22
	}
	if db := c.Database; db != nil {
		if db.Host == "" {
			db.Host = "127.0.0.1"
		}
		if db.Port == 0 {
			db.Port = 3306
		}
		if db.ConfigFilesExtension == "" {
			db.ConfigFilesExtension = ".json"
		}
		for i := range db.SeedTables {
			s := &db.SeedTables[i]
			if s.Database == "" {
				s.Database = "main"
			}
			if s.BeginMark == "" {
				s.BeginMark = DefaultBeginMark
			}
			if s.EndMark == "" {
				s.EndMark = DefaultEndMark
			}
		}
	}
}

// Validate checks the structural rules the orchestrator relies on.
func (c *Config) Validate() error {
	if c.AgentName != AgentName {
		return &types.ConfigError{Field: "agent_name", Reason: fmt.Sprintf("must be %q, got %q", AgentName, c.AgentName)}
	}
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Destination.validate("destination"); err != nil {
		return err
	}
	if c.Options.MigrationOnly && c.Options.CleanInstall {
		return &types.ConfigError{Field: "options", Reason: "migration_only and clean_install are mutually exclusive"}
	}
	if c.Options.MaxConcurrentTransfers < 1 {
		return &types.ConfigError{Field: "options.max_concurrent_transfers", Reason: "must be at least 1"}
	}
	for i, m := range c.FileMappings {
		if m.Source == "" || m.Target == "" {
			return &types.ConfigError{Field: fmt.Sprintf("file_mappings[%d]", i), Reason: "source and target are required"}
		}
	}
	if db := c.Database; db != nil {
		if db.AdminUsername == "" {
			return &types.ConfigError{Field: "database.admin_username", Reason: "required"}
		}
		for i, s := range db.SeedTables {
			if s.TableName == "" {
				return &types.ConfigError{Field: fmt.Sprintf("database.seed_tables[%d].table_name", i), Reason: "required"}
			}
			if s.TableScriptFile == "" {
				return &types.ConfigError{Field: fmt.Sprintf("database.seed_tables[%d].table_script_file", i), Reason: "required"}
			}
			if s.Database != "main" && s.Database != "tenant" {
				return &types.ConfigError{Field: fmt.Sprintf("database.seed_tables[%d].database", i), Reason: fmt.Sprintf("must be main or tenant, got %q", s.Database)}
			}
			if s.NestedArrayField != "" && s.ArrayField == "" {
				return &types.ConfigError{Field: fmt.Sprintf("database.seed_tables[%d]", i), Reason: "nested_array_field requires array_field"}
			}
		}
	}
	return nil
}

func (e *EndpointConfig) validate(field string) error {
	switch e.Type {
	case types.EndpointWindowsShare:
		if e.Path == "" {
			return &types.ConfigError{Field: field + ".path", Reason: "required"}
		}
	case types.EndpointSSH:
		if e.Host == "" {
			return &types.ConfigError{Field: field + ".host", Reason: "required"}
		}
		if e.Path == "" {
			return &types.ConfigError{Field: field + ".path", Reason: "required"}
		}
		if e.Username == "" {
			return &types.ConfigError{Field: field + ".username", Reason: "required"}
		}
		hasPassword := e.Password != ""
		hasKey := e.PrivateKeyFile != ""
		if hasPassword == hasKey {
			return &types.ConfigError{Field: field, Reason: "exactly one of password or private_key_file is required"}
		}
	default:
		return &types.ConfigError{Field: field + ".type", Reason: fmt.Sprintf("must be windows_share or ssh, got %q", e.Type)}
	}
	return nil
}
