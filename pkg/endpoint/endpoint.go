package endpoint

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/types"
)

// ErrExecUnsupported is returned by Exec on endpoints without a shell
// (local filesystems and Windows shares).
var ErrExecUnsupported = errors.New("endpoint: shell execution not supported")

// SkipFunc lets a listing prune entries during the walk. It receives the
// slash-normalized relative path; for directories a true return skips the
// whole subtree.
type SkipFunc func(rel string, isDir bool) bool

// Endpoint is the uniform capability set over a file-tree root. Endpoints
// are read-only once opened: the orchestrator holds both ends for the whole
// run and releases them in teardown.
type Endpoint interface {
	// Kind reports the configured transport.
	Kind() types.EndpointKind

	// Root returns the endpoint's root path.
	Root() string

	// List walks the tree and returns a record for every regular file,
	// mtimes truncated to whole seconds, paths relative to the root using
	// "/". Hidden files are included.
	List(ctx context.Context, skip SkipFunc) ([]*types.FileRecord, error)

	// Stat returns the record for a single relative path.
	Stat(ctx context.Context, rel string) (*types.FileRecord, error)

	// Open opens a file for streaming reads.
	Open(ctx context.Context, rel string) (io.ReadCloser, error)

	// Create opens a file for writing, creating missing ancestor
	// directories. The replacement is atomic where the transport allows.
	Create(ctx context.Context, rel string) (io.WriteCloser, error)

	// MkdirAll creates a directory and any missing ancestors.
	MkdirAll(ctx context.Context, rel string) error

	// Remove deletes a single file or empty directory.
	Remove(ctx context.Context, rel string) error

	// RemoveAll deletes a directory tree.
	RemoveAll(ctx context.Context, rel string) error

	// Exec runs a shell command on the endpoint host. Returns
	// ErrExecUnsupported on local endpoints.
	Exec(ctx context.Context, command string) (string, error)

	Close() error
}

// Tunneler is implemented by endpoints that can carry TCP connections to
// the remote host's network, used for the database tunnel.
type Tunneler interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Open constructs the driver selected by the configuration's type field.
// channels bounds the SFTP pool for SSH endpoints.
func Open(ctx context.Context, cfg *config.EndpointConfig, channels int, logger zerolog.Logger) (Endpoint, error) {
	switch cfg.Type {
	case types.EndpointSSH:
		return NewSSH(ctx, cfg, channels, logger)
	case types.EndpointWindowsShare:
		return NewLocal(cfg, logger)
	default:
		return nil, &types.ConfigError{Field: "type", Reason: "unknown endpoint type " + string(cfg.Type)}
	}
}
