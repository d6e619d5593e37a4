package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/cache"
	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/database"
	"github.com/andybasham/aiagent/pkg/endpoint"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/ignore"
	"github.com/andybasham/aiagent/pkg/seed"
	"github.com/andybasham/aiagent/pkg/sync"
	"github.com/andybasham/aiagent/pkg/types"
)

// ConfirmFunc acknowledges a destructive step. Returning false aborts the
// run before anything is touched.
type ConfirmFunc func(prompt string) bool

// Deployer orchestrates one run: endpoints, pre-build gate, sync plan,
// file mappings, database phases, permissions script, and the final cache
// write. It owns every long-lived resource and releases all of them on
// every exit path.
type Deployer struct {
	cfg     *config.Config
	logger  zerolog.Logger
	broker  *events.Broker
	confirm ConfirmFunc
	runID   string
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithConfirm installs the confirmation prompt for warn and clean-install
// acknowledgements. Without one, the run proceeds unprompted.
func WithConfirm(fn ConfirmFunc) Option {
	return func(d *Deployer) { d.confirm = fn }
}

// WithBroker attaches a run event broker.
func WithBroker(b *events.Broker) Option {
	return func(d *Deployer) { d.broker = b }
}

// New builds a deployer for a loaded, validated configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Deployer {
	d := &Deployer{
		cfg:   cfg,
		runID: uuid.NewString()[:8],
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logger.With().Str("run_id", d.runID).Logger()
	return d
}

func (d *Deployer) publish(t events.EventType, path, msg string) {
	if d.broker != nil {
		d.broker.Publish(t, path, msg)
	}
}

// Run executes the whole deployment. The returned summary is populated as
// far as the run got, even on error.
func (d *Deployer) Run(ctx context.Context) (*types.Summary, error) {
	start := time.Now()
	summary := &types.Summary{RunID: d.runID, DryRun: d.cfg.Options.DryRun}
	defer func() { summary.Duration = time.Since(start) }()

	d.logger.Info().
		Str("description", d.cfg.Description).
		Bool("dry_run", d.cfg.Options.DryRun).
		Msg("Deployment starting")
	d.publish(events.EventRunStarted, "", d.cfg.Description)

	if d.cfg.Warn != "" && d.confirm != nil && !d.confirm(d.cfg.Warn) {
		return summary, fmt.Errorf("deployment declined at warning prompt")
	}
	if d.cfg.Options.CleanInstall && !d.cfg.Options.DryRun && d.confirm != nil &&
		!d.confirm("clean_install will drop all configured databases and wipe the destination root; continue?") {
		return summary, fmt.Errorf("clean install declined")
	}

	// A missing or corrupt cache is a full comparison, not a failure.
	trustCache, cerr := cache.Load(d.cfg.Path)
	if cerr != nil {
		d.logger.Warn().Err(cerr).Msg("Cache unreadable, falling back to full comparison")
	}

	matcher := ignore.New(
		d.cfg.Ignore.Files,
		d.cfg.Ignore.Folders,
		d.cfg.Ignore.Extensions,
		ignore.WindowsRoot(d.cfg.Source.Path),
	)

	src, err := endpoint.Open(ctx, &d.cfg.Source, d.cfg.Options.MaxConcurrentTransfers, d.logger.With().Str("component", "source").Logger())
	if err != nil {
		return summary, err
	}
	defer src.Close()

	dst, err := endpoint.Open(ctx, &d.cfg.Destination, d.cfg.Options.MaxConcurrentTransfers, d.logger.With().Str("component", "destination").Logger())
	if err != nil {
		return summary, err
	}
	defer dst.Close()

	if err := d.runPrebuild(ctx, trustCache); err != nil {
		return summary, err
	}

	engine := sync.New(src, dst, matcher, trustCache, d.cfg.Options, d.broker, d.logger.With().Str("component", "sync").Logger())

	if d.cfg.Options.CleanInstall {
		if err := engine.WipeDestination(ctx); err != nil {
			return summary, err
		}
	}

	plan, err := engine.BuildPlan(ctx)
	if err != nil {
		return summary, err
	}
	result, err := engine.Execute(ctx, plan)
	if err != nil {
		return summary, err
	}
	summary.FilesCreated = result.Created
	summary.FilesUpdated = result.Updated
	summary.FilesDeleted = result.Deleted
	summary.FilesSkipped = result.Skipped
	summary.FilesFailed = len(result.Failures)

	mapped, err := engine.ApplyMappings(ctx, d.cfg.FileMappings)
	summary.MappingsApplied = mapped
	if err != nil {
		return summary, err
	}

	if err := d.runDatabase(ctx, dst, trustCache, summary); err != nil {
		return summary, err
	}

	d.runPermissionsScript(ctx, dst)

	if summary.FilesFailed > 0 {
		d.publish(events.EventRunFailed, "", fmt.Sprintf("%d transfers failed", summary.FilesFailed))
		return summary, fmt.Errorf("%d file transfers failed", summary.FilesFailed)
	}

	if d.cfg.Options.DryRun {
		d.logger.Info().Msg("Dry run complete, cache not written")
		d.publish(events.EventRunCompleted, "", "dry run")
		return summary, nil
	}

	// The cache write is the final act of a successful run; a write
	// failure does not undo the deploy that already happened.
	if err := trustCache.Save(); err != nil {
		d.logger.Error().Err(err).Msg("CACHE WRITE FAILED: next run will do a full comparison")
	}

	d.logger.Info().
		Int("created", summary.FilesCreated).
		Int("updated", summary.FilesUpdated).
		Int("deleted", summary.FilesDeleted).
		Int("scripts", summary.ScriptsExecuted).
		Int("seed_inserts", summary.SeedInserts).
		Dur("duration", time.Since(start)).
		Msg("Deployment complete")
	d.publish(events.EventRunCompleted, "", "")
	return summary, nil
}

// runDatabase connects (through the destination's SSH session when the
// destination is remote) and executes the database plan.
func (d *Deployer) runDatabase(ctx context.Context, dst endpoint.Endpoint, trustCache *cache.Cache, summary *types.Summary) error {
	dbCfg := d.cfg.Database
	if dbCfg == nil {
		return nil
	}
	if d.cfg.Options.DryRun {
		d.logger.Info().Msg("[dry-run] Skipping database deployment")
		return nil
	}

	var tenants []types.TenantDescriptor
	if dbCfg.ConfigFilesPath != "" {
		var err error
		tenants, err = seed.LoadTenants(dbCfg.ConfigFilesPath, dbCfg.ConfigFilesExtension)
		if err != nil {
			return err
		}
		d.logger.Info().Int("tenants", len(tenants)).Msg("Tenants discovered")
	}

	var tun endpoint.Tunneler
	if t, ok := dst.(endpoint.Tunneler); ok {
		tun = t
	}

	client, err := database.Connect(ctx, dbCfg, tun, d.logger.With().Str("component", "database").Logger())
	if err != nil {
		return err
	}
	defer client.Close()

	executor := database.New(client, dbCfg, d.cfg.Options, trustCache, d.cfg.ApplicationName, d.broker, d.logger.With().Str("component", "database").Logger())
	err = executor.Run(ctx, tenants)
	summary.ScriptsExecuted = executor.Executed
	summary.ScriptsSkipped = executor.Skipped
	summary.SeedInserts = executor.Inserted
	return err
}

// runPermissionsScript runs the post-deploy permissions command on the
// destination. Failures are loud but never undo a finished deploy.
func (d *Deployer) runPermissionsScript(ctx context.Context, dst endpoint.Endpoint) {
	script := d.cfg.SetPermissionsScript
	if script == "" || d.cfg.Options.DryRun {
		return
	}
	out, err := dst.Exec(ctx, script)
	if err != nil {
		d.logger.Error().Err(err).Str("output", out).Msg("Permissions script failed")
		return
	}
	d.logger.Info().Msg("Permissions script executed")
}
