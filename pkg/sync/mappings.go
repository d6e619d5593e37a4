package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/endpoint"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/ignore"
	"github.com/andybasham/aiagent/pkg/types"
)

// ApplyMappings processes the explicit file mappings after the main plan.
// Mappings bypass the ignore matcher, use the cache's file_mappings map to
// skip unchanged entries, and may overwrite files the plan just wrote.
// Absolute sources are read from the machine running the agent; relative
// sources resolve through the source endpoint.
func (e *Engine) ApplyMappings(ctx context.Context, mappings []config.FileMapping) (int, error) {
	applied := 0
	for _, m := range mappings {
		mtime, open, err := e.resolveMappingSource(ctx, m.Source)
		if err != nil {
			return applied, &types.TransferError{Path: m.Source, Op: "read", Err: err}
		}

		if prev, ok := e.cache.FileMappings[m.Target]; ok && prev == mtime {
			e.logger.Debug().Str("target", m.Target).Msg("Mapping unchanged, skipped")
			continue
		}

		if e.opts.DryRun {
			e.logger.Info().Str("source", m.Source).Str("target", m.Target).Msg("[dry-run] Would apply mapping")
			applied++
			continue
		}

		err = endpoint.Retry(ctx, e.logger, "mapping", func() error {
			r, err := open(ctx)
			if err != nil {
				return err
			}
			defer r.Close()
			w, err := e.dst.Create(ctx, m.Target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(w, r); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		})
		if err != nil {
			return applied, &types.TransferError{Path: m.Target, Op: "write", Err: err}
		}

		e.cache.FileMappings[m.Target] = mtime
		applied++
		e.publish(events.EventMappingApplied, m.Target, m.Source)
		e.logger.Info().Str("source", m.Source).Str("target", m.Target).Msg("Mapping applied")
	}
	return applied, nil
}

type opener func(context.Context) (io.ReadCloser, error)

func (e *Engine) resolveMappingSource(ctx context.Context, source string) (int64, opener, error) {
	if filepath.IsAbs(source) || ignore.WindowsRoot(source) {
		info, err := os.Stat(source)
		if err != nil {
			return 0, nil, fmt.Errorf("mapping source %s: %w", source, err)
		}
		return info.ModTime().Unix(), func(context.Context) (io.ReadCloser, error) {
			return os.Open(source)
		}, nil
	}

	rec, err := e.src.Stat(ctx, source)
	if err != nil {
		return 0, nil, fmt.Errorf("mapping source %s: %w", source, err)
	}
	return rec.Mtime, func(ctx context.Context) (io.ReadCloser, error) {
		return e.src.Open(ctx, source)
	}, nil
}
