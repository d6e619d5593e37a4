package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/andybasham/aiagent/pkg/cache"
	"github.com/andybasham/aiagent/pkg/events"
)

// runPrebuild runs the configured local build command when any watched
// path changed since the last successful build. The command must exit
// zero; anything else aborts the run before the plan is computed.
func (d *Deployer) runPrebuild(ctx context.Context, trustCache *cache.Cache) error {
	pb := d.cfg.PreBuild
	if pb == nil || pb.Command == "" {
		return nil
	}
	if d.cfg.Options.DryRun {
		d.logger.Info().Str("command", pb.Command).Msg("[dry-run] Skipping pre-build")
		return nil
	}

	mtimes, changed, err := d.watchState(trustCache)
	if err != nil {
		return err
	}
	if !changed && len(pb.WatchPaths) > 0 {
		d.logger.Info().Msg("Watched sources unchanged, pre-build skipped")
		return nil
	}

	d.logger.Info().Str("command", pb.Command).Msg("Running pre-build")
	cmd := shellCommand(ctx, pb.Command)
	if pb.WorkingDir != "" {
		cmd.Dir = pb.WorkingDir
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pre-build failed: %w", err)
	}

	for path, mtime := range mtimes {
		trustCache.Prebuild[path] = mtime
	}
	d.publish(events.EventPrebuildRun, "", pb.Command)
	return nil
}

// watchState stats every watched path (relative paths resolve against the
// configuration file's directory) and reports whether any mtime differs
// from the cache's record of the last successful build.
func (d *Deployer) watchState(trustCache *cache.Cache) (map[string]int64, bool, error) {
	pb := d.cfg.PreBuild
	mtimes := make(map[string]int64, len(pb.WatchPaths))
	changed := false
	for _, watch := range pb.WatchPaths {
		p := watch
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(d.cfg.Path), p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, false, fmt.Errorf("pre-build watch path %s: %w", watch, err)
		}
		mtime := info.ModTime().Unix()
		mtimes[watch] = mtime
		if trustCache.Prebuild[watch] != mtime {
			changed = true
		}
	}
	return mtimes, changed, nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
