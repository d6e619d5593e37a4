package endpoint

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/types"
)

const (
	connectTimeout = 30 * time.Second
	opTimeout      = 120 * time.Second
)

// SSH drives a remote root over one authenticated SSH session. File
// operations ride SFTP channels leased from a bounded pool; shell
// execution and the database tunnel use their own channels and never
// contend with transfers.
type SSH struct {
	addr   string
	root   string
	client *ssh.Client

	// pool holds channel slots. A nil slot means the SFTP channel for it
	// has not been opened yet; channels are created on first lease.
	pool chan *sftp.Client

	logger zerolog.Logger
}

// NewSSH dials and authenticates the remote host. channels bounds the SFTP
// pool (max_concurrent_transfers).
func NewSSH(ctx context.Context, cfg *config.EndpointConfig, channels int, logger zerolog.Logger) (*SSH, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, &types.EndpointError{Endpoint: cfg.Address(), Err: err}
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, &types.EndpointError{Endpoint: cfg.Address(), Err: fmt.Errorf("ssh dial failed: %w", err)}
	}

	if channels < 1 {
		channels = 1
	}
	pool := make(chan *sftp.Client, channels)
	for i := 0; i < channels; i++ {
		pool <- nil
	}

	s := &SSH{
		addr:   cfg.Address(),
		root:   cfg.Path,
		client: client,
		pool:   pool,
		logger: logger,
	}

	// Open one channel eagerly so subsystem failures surface at open time,
	// before any destructive action.
	sc, err := s.acquire(ctx)
	if err != nil {
		client.Close()
		return nil, &types.EndpointError{Endpoint: cfg.Address(), Err: err}
	}
	s.release(sc)

	logger.Debug().Str("endpoint", s.addr).Int("channels", channels).Msg("SSH endpoint opened")
	return s, nil
}

func authMethods(cfg *config.EndpointConfig) ([]ssh.AuthMethod, error) {
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read private key %s: %w", cfg.PrivateKeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("cannot parse private key %s: %w", cfg.PrivateKeyFile, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
}

// acquire leases an SFTP channel, blocking until one is free. Channels are
// opened lazily on first lease.
func (s *SSH) acquire(ctx context.Context) (*sftp.Client, error) {
	select {
	case sc := <-s.pool:
		if sc != nil {
			return sc, nil
		}
		sc, err := sftp.NewClient(s.client)
		if err != nil {
			// Return the slot so the pool keeps its size.
			s.pool <- nil
			return nil, fmt.Errorf("sftp subsystem failed: %w", err)
		}
		return sc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *SSH) release(sc *sftp.Client) {
	s.pool <- sc
}

func (s *SSH) Kind() types.EndpointKind { return types.EndpointSSH }

func (s *SSH) Root() string { return s.root }

func (s *SSH) abs(rel string) string {
	return path.Join(s.root, rel)
}

// List walks the remote tree over one leased channel. Symbolic links are
// traversed one level: a link to a regular file is listed as that file, a
// link to a directory is descended once, and any target already on the
// in-flight traversal stack is skipped.
func (s *SSH) List(ctx context.Context, skip SkipFunc) ([]*types.FileRecord, error) {
	sc, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(sc)

	var records []*types.FileRecord
	stack := map[string]bool{s.root: true}
	if err := s.walk(ctx, sc, s.root, "", skip, stack, &records); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.addr, err)
	}
	return records, nil
}

func (s *SSH) walk(ctx context.Context, sc *sftp.Client, dir, relDir string, skip SkipFunc, stack map[string]bool, out *[]*types.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := sc.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := path.Join(dir, entry.Name())
		rel := entry.Name()
		if relDir != "" {
			rel = relDir + "/" + entry.Name()
		}

		mode := entry.Mode()
		if mode&os.ModeSymlink != 0 {
			target, err := sc.ReadLink(full)
			if err != nil {
				continue
			}
			if !path.IsAbs(target) {
				target = path.Join(dir, target)
			}
			if stack[target] {
				continue
			}
			info, err := sc.Stat(full)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if skip != nil && skip(rel, true) {
					continue
				}
				stack[target] = true
				if err := s.walk(ctx, sc, full, rel, skip, stack, out); err != nil {
					return err
				}
				delete(stack, target)
				continue
			}
			entry = info
			mode = info.Mode()
		}

		if entry.IsDir() {
			if skip != nil && skip(rel, true) {
				continue
			}
			stack[full] = true
			if err := s.walk(ctx, sc, full, rel, skip, stack, out); err != nil {
				return err
			}
			delete(stack, full)
			continue
		}
		if !mode.IsRegular() {
			continue
		}
		if skip != nil && skip(rel, false) {
			continue
		}
		*out = append(*out, &types.FileRecord{
			RelPath: rel,
			AbsPath: full,
			Size:    entry.Size(),
			Mtime:   entry.ModTime().Unix(),
		})
	}
	return nil
}

func (s *SSH) Stat(ctx context.Context, rel string) (*types.FileRecord, error) {
	sc, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(sc)

	info, err := sc.Stat(s.abs(rel))
	if err != nil {
		return nil, err
	}
	return &types.FileRecord{
		RelPath: rel,
		AbsPath: s.abs(rel),
		Size:    info.Size(),
		Mtime:   info.ModTime().Unix(),
		IsDir:   info.IsDir(),
	}, nil
}

// leasedReader keeps the SFTP channel checked out for the life of the read.
type leasedReader struct {
	io.ReadCloser
	s  *SSH
	sc *sftp.Client
}

func (r *leasedReader) Close() error {
	err := r.ReadCloser.Close()
	r.s.release(r.sc)
	return err
}

func (s *SSH) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	sc, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	f, err := sc.Open(s.abs(rel))
	if err != nil {
		s.release(sc)
		return nil, err
	}
	return &leasedReader{ReadCloser: f, s: s, sc: sc}, nil
}

// leasedWriter writes through a temporary sibling and renames it over the
// target on Close.
type leasedWriter struct {
	*sftp.File
	s      *SSH
	sc     *sftp.Client
	tmp    string
	target string
}

func (w *leasedWriter) Close() error {
	defer w.s.release(w.sc)
	if err := w.File.Close(); err != nil {
		w.sc.Remove(w.tmp)
		return err
	}
	if err := w.sc.PosixRename(w.tmp, w.target); err != nil {
		// Fall back to delete-then-rename for servers without the
		// posix-rename extension.
		w.sc.Remove(w.target)
		if err := w.sc.Rename(w.tmp, w.target); err != nil {
			w.sc.Remove(w.tmp)
			return err
		}
	}
	return nil
}

func (s *SSH) Create(ctx context.Context, rel string) (io.WriteCloser, error) {
	sc, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	target := s.abs(rel)
	if err := sc.MkdirAll(path.Dir(target)); err != nil {
		s.release(sc)
		return nil, err
	}
	tmp := path.Join(path.Dir(target), "."+path.Base(target)+".deploy-tmp")
	f, err := sc.Create(tmp)
	if err != nil {
		s.release(sc)
		return nil, err
	}
	return &leasedWriter{File: f, s: s, sc: sc, tmp: tmp, target: target}, nil
}

func (s *SSH) MkdirAll(ctx context.Context, rel string) error {
	sc, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(sc)
	return sc.MkdirAll(s.abs(rel))
}

func (s *SSH) Remove(ctx context.Context, rel string) error {
	sc, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(sc)
	return sc.Remove(s.abs(rel))
}

func (s *SSH) RemoveAll(ctx context.Context, rel string) error {
	sc, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(sc)
	return sc.RemoveAll(s.abs(rel))
}

// Exec runs a command on the remote host over a dedicated session channel;
// it never borrows from the transfer pool.
func (s *SSH) Exec(ctx context.Context, command string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	timer := time.NewTimer(opTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return string(r.out), r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("command timed out after %s", opTimeout)
	}
}

// DialContext opens a forwarded TCP connection through the SSH session,
// used by the database executor to reach the remote MySQL server.
func (s *SSH) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return s.client.DialContext(ctx, network, addr)
}

// Close tears down the SSH session; all SFTP channels and forwarded
// connections close with it.
func (s *SSH) Close() error {
	for {
		select {
		case sc := <-s.pool:
			if sc != nil {
				sc.Close()
			}
		default:
			return s.client.Close()
		}
	}
}
