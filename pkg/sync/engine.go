package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	gosync "sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andybasham/aiagent/pkg/cache"
	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/endpoint"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/ignore"
	"github.com/andybasham/aiagent/pkg/types"
)

// Engine computes and executes the file half of a deployment: conditional
// listing, diffing against the trusted destination view, plan execution
// over a bounded worker pool, and explicit file mappings.
type Engine struct {
	src     endpoint.Endpoint
	dst     endpoint.Endpoint
	matcher *ignore.Matcher
	cache   *cache.Cache
	opts    config.Options
	broker  *events.Broker
	logger  zerolog.Logger

	// source records by relative path, captured by BuildPlan and reused
	// during execution so cache entries carry the read-time observation.
	source map[string]*types.FileRecord
}

// Result counts what Execute actually did. A result with failures makes
// the whole run finish nonzero and suppresses the cache write.
type Result struct {
	Created  int
	Updated  int
	Deleted  int
	Skipped  int
	Failures []*types.TransferError
}

// New builds a sync engine over two opened endpoints. broker may be nil.
func New(src, dst endpoint.Endpoint, matcher *ignore.Matcher, c *cache.Cache, opts config.Options, broker *events.Broker, logger zerolog.Logger) *Engine {
	return &Engine{
		src:     src,
		dst:     dst,
		matcher: matcher,
		cache:   c,
		opts:    opts,
		broker:  broker,
		logger:  logger,
	}
}

func (e *Engine) publish(t events.EventType, path, msg string) {
	if e.broker != nil {
		e.broker.Publish(t, path, msg)
	}
}

func (e *Engine) skipFunc() endpoint.SkipFunc {
	return func(rel string, isDir bool) bool {
		if isDir {
			return e.matcher.MatchDir(rel)
		}
		return e.matcher.Match(rel)
	}
}

// BuildPlan lists the source, establishes the destination view, and diffs
// the two. The destination is listed for real only when the cache cannot
// be trusted (ignore_cache, clean_install, or no prior cache); otherwise
// the cache's files map is authoritative and no destination round-trips
// happen at all.
func (e *Engine) BuildPlan(ctx context.Context) (*types.SyncPlan, error) {
	sourceRecords, err := e.src.List(ctx, e.skipFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to list source: %w", err)
	}
	e.source = make(map[string]*types.FileRecord, len(sourceRecords))
	for _, r := range sourceRecords {
		e.source[r.RelPath] = r
	}

	listDestination := e.opts.IgnoreCache || e.opts.CleanInstall || !e.cache.Exists()

	destView := make(map[string]cache.FileEntry)
	if listDestination {
		destRecords, err := e.dst.List(ctx, e.skipFunc())
		if err != nil {
			return nil, fmt.Errorf("failed to list destination: %w", err)
		}
		for _, r := range destRecords {
			destView[r.RelPath] = cache.FileEntry{Size: r.Size, Mtime: r.Mtime}
		}
		e.logger.Debug().Int("files", len(destRecords)).Msg("Destination listed")
	} else {
		for rel, entry := range e.cache.Files {
			destView[rel] = entry
		}
		e.logger.Debug().Int("files", len(destView)).Msg("Destination view taken from cache")
	}

	plan := &types.SyncPlan{DestinationListed: listDestination}
	for rel, s := range e.source {
		d, ok := destView[rel]
		switch {
		case !ok:
			plan.Creates = append(plan.Creates, rel)
		case s.Size != d.Size || s.Mtime > d.Mtime:
			plan.Updates = append(plan.Updates, rel)
		}
	}

	// Deletions are only ever inferred from a real listing; the engine
	// never deletes on the cache's word alone.
	if listDestination && e.opts.DeleteExtraFiles {
		for rel := range destView {
			if _, ok := e.source[rel]; !ok {
				plan.Deletes = append(plan.Deletes, rel)
			}
		}
	}

	plan.Finalize()
	e.logger.Info().
		Int("creates", len(plan.Creates)).
		Int("updates", len(plan.Updates)).
		Int("deletes", len(plan.Deletes)).
		Int("in_sync", len(e.source)-len(plan.Creates)-len(plan.Updates)).
		Bool("destination_listed", listDestination).
		Msg("Sync plan built")
	return plan, nil
}

// WipeDestination removes, recursively, every entry directly under the
// destination root that the file listing reaches. Used by clean_install
// before the plan runs. Entries are found through the regular-file
// listing, so a top-level directory holding no regular file is left in
// place.
func (e *Engine) WipeDestination(ctx context.Context) error {
	records, err := e.dst.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to list destination for wipe: %w", err)
	}

	if e.opts.DryRun {
		e.logger.Info().Int("files", len(records)).Msg("[dry-run] Would wipe destination root")
		return nil
	}

	topLevel := make(map[string]bool)
	for _, r := range records {
		first := r.RelPath
		if i := indexSlash(first); i >= 0 {
			first = first[:i]
		}
		topLevel[first] = true
	}
	for entry := range topLevel {
		if err := endpoint.Retry(ctx, e.logger, "wipe", func() error {
			return e.dst.RemoveAll(ctx, entry)
		}); err != nil {
			return &types.TransferError{Path: entry, Op: "delete", Err: err}
		}
	}
	for rel := range e.cache.Files {
		e.cache.DeleteFile(rel)
	}
	e.logger.Info().Int("entries", len(topLevel)).Msg("Destination root wiped")
	return nil
}

func indexSlash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// Execute runs the plan: ancestor directories first, then creates and
// updates on the worker pool, then deletes single-threaded. Individual
// transfer failures are recorded and the rest of the plan continues.
func (e *Engine) Execute(ctx context.Context, plan *types.SyncPlan) (*Result, error) {
	result := &Result{Skipped: len(e.source) - len(plan.Creates) - len(plan.Updates)}

	if e.opts.DryRun {
		for _, rel := range plan.Creates {
			e.logger.Info().Str("path", rel).Msg("[dry-run] Would create")
		}
		for _, rel := range plan.Updates {
			e.logger.Info().Str("path", rel).Msg("[dry-run] Would update")
		}
		for _, rel := range plan.Deletes {
			e.logger.Info().Str("path", rel).Msg("[dry-run] Would delete")
		}
		result.Created = len(plan.Creates)
		result.Updated = len(plan.Updates)
		result.Deleted = len(plan.Deletes)
		return result, nil
	}

	if err := e.makeAncestors(ctx, plan); err != nil {
		return result, err
	}

	workers := 1
	if e.src.Kind() == types.EndpointSSH || e.dst.Kind() == types.EndpointSSH {
		workers = e.opts.MaxConcurrentTransfers
	}

	var mu gosync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	dispatch := func(rel string, update bool) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := endpoint.Retry(gctx, e.logger, "transfer", func() error {
				return e.transfer(gctx, rel)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				terr := &types.TransferError{Path: rel, Op: "write", Err: err}
				result.Failures = append(result.Failures, terr)
				e.logger.Error().Err(err).Str("path", rel).Msg("Transfer failed")
				e.publish(events.EventFileFailed, rel, err.Error())
				return nil
			}
			rec := e.source[rel]
			e.cache.SetFile(rel, rec.Size, rec.Mtime)
			if update {
				result.Updated++
				e.publish(events.EventFileUpdated, rel, "")
			} else {
				result.Created++
				e.publish(events.EventFileCreated, rel, "")
			}
			return nil
		})
	}

	for _, rel := range plan.Creates {
		dispatch(rel, false)
	}
	for _, rel := range plan.Updates {
		dispatch(rel, true)
	}

	// All writes complete before any delete.
	if err := g.Wait(); err != nil {
		return result, err
	}

	if err := e.executeDeletes(ctx, plan, result); err != nil {
		return result, err
	}
	return result, nil
}

// makeAncestors creates every directory a planned write needs, shallow
// before deep, so no worker ever races a missing parent.
func (e *Engine) makeAncestors(ctx context.Context, plan *types.SyncPlan) error {
	dirs := make(map[string]bool)
	add := func(rel string) {
		for d := path.Dir(rel); d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = true
		}
	}
	for _, rel := range plan.Creates {
		add(rel)
	}
	for _, rel := range plan.Updates {
		add(rel)
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	for _, d := range sorted {
		if err := endpoint.Retry(ctx, e.logger, "mkdir", func() error {
			return e.dst.MkdirAll(ctx, d)
		}); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// transfer streams one file source to destination without buffering it.
func (e *Engine) transfer(ctx context.Context, rel string) error {
	r, err := e.src.Open(ctx, rel)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer r.Close()

	w, err := e.dst.Create(ctx, rel)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// executeDeletes removes planned files one at a time, then reaps any
// directory left empty.
func (e *Engine) executeDeletes(ctx context.Context, plan *types.SyncPlan, result *Result) error {
	for _, rel := range plan.Deletes {
		err := endpoint.Retry(ctx, e.logger, "delete", func() error {
			return e.dst.Remove(ctx, rel)
		})
		if err != nil && errors.Is(err, os.ErrNotExist) {
			// Already gone counts as deleted.
			err = nil
		}
		if err != nil {
			result.Failures = append(result.Failures, &types.TransferError{Path: rel, Op: "delete", Err: err})
			e.logger.Error().Err(err).Str("path", rel).Msg("Delete failed")
			e.publish(events.EventFileFailed, rel, err.Error())
			continue
		}
		e.cache.DeleteFile(rel)
		result.Deleted++
		e.publish(events.EventFileDeleted, rel, "")
	}

	if len(plan.Deletes) > 0 {
		e.reapEmptyDirs(ctx, plan.Deletes)
	}
	return nil
}

// reapEmptyDirs attempts to remove the parent chains of deleted files,
// deepest first. Non-empty directories simply refuse the remove.
func (e *Engine) reapEmptyDirs(ctx context.Context, deleted []string) {
	dirs := make(map[string]bool)
	for _, rel := range deleted {
		for d := path.Dir(rel); d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = true
		}
	}
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	for _, d := range sorted {
		if err := e.dst.Remove(ctx, d); err == nil {
			e.logger.Debug().Str("path", d).Msg("Removed empty directory")
		}
	}
}
