package endpoint

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/types"
)

// Local drives a filesystem root, including mounted UNC shares. The
// windows_share credentials in the configuration are documentation only;
// the share must already be reachable as a path.
type Local struct {
	root   string
	kind   types.EndpointKind
	logger zerolog.Logger
}

// NewLocal opens a local root. The root must exist and be a directory.
func NewLocal(cfg *config.EndpointConfig, logger zerolog.Logger) (*Local, error) {
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, &types.EndpointError{Endpoint: cfg.Address(), Err: err}
	}
	if !info.IsDir() {
		return nil, &types.EndpointError{Endpoint: cfg.Address(), Err: fmt.Errorf("%s is not a directory", cfg.Path)}
	}
	return &Local{root: cfg.Path, kind: cfg.Type, logger: logger}, nil
}

func (l *Local) Kind() types.EndpointKind { return l.kind }

func (l *Local) Root() string { return l.root }

func (l *Local) abs(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// List walks the root and returns every regular file. Hidden files are
// included; mtimes are truncated to whole seconds.
func (l *Local) List(ctx context.Context, skip SkipFunc) ([]*types.FileRecord, error) {
	var records []*types.FileRecord

	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == l.root {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skip != nil && skip(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if skip != nil && skip(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		records = append(records, &types.FileRecord{
			RelPath: rel,
			AbsPath: p,
			Size:    info.Size(),
			Mtime:   info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.root, err)
	}
	return records, nil
}

func (l *Local) Stat(ctx context.Context, rel string) (*types.FileRecord, error) {
	info, err := os.Stat(l.abs(rel))
	if err != nil {
		return nil, err
	}
	return &types.FileRecord{
		RelPath: rel,
		AbsPath: l.abs(rel),
		Size:    info.Size(),
		Mtime:   info.ModTime().Unix(),
		IsDir:   info.IsDir(),
	}, nil
}

func (l *Local) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	return os.Open(l.abs(rel))
}

// Create writes through a temporary sibling renamed over the target on
// Close, so readers never observe a half-written file.
func (l *Local) Create(ctx context.Context, rel string) (io.WriteCloser, error) {
	target := l.abs(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: tmp, target: target}, nil
}

type atomicFile struct {
	*os.File
	target string
}

func (a *atomicFile) Close() error {
	if err := a.File.Close(); err != nil {
		os.Remove(a.File.Name())
		return err
	}
	if err := os.Rename(a.File.Name(), a.target); err != nil {
		os.Remove(a.File.Name())
		return err
	}
	return nil
}

func (l *Local) MkdirAll(ctx context.Context, rel string) error {
	return os.MkdirAll(l.abs(rel), 0755)
}

func (l *Local) Remove(ctx context.Context, rel string) error {
	return os.Remove(l.abs(rel))
}

func (l *Local) RemoveAll(ctx context.Context, rel string) error {
	return os.RemoveAll(l.abs(rel))
}

func (l *Local) Exec(ctx context.Context, command string) (string, error) {
	return "", ErrExecUnsupported
}

func (l *Local) Close() error { return nil }
