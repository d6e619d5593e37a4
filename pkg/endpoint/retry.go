package endpoint

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
)

// backoff between retry attempts. Three retries total.
var backoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Retry runs fn, retrying transient failures up to three times with
// exponential backoff. Permanent errors (authentication, permission
// denied, no such file) surface immediately.
func Retry(ctx context.Context, logger zerolog.Logger, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || Permanent(err) || attempt >= len(backoff) {
			return err
		}
		logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff[attempt]).
			Msg("Transient failure, retrying")

		select {
		case <-time.After(backoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Permanent classifies errors that no retry can fix.
func Permanent(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return true
	}
	if errors.Is(err, sftp.ErrSSHFxNoSuchFile) ||
		errors.Is(err, sftp.ErrSSHFxPermissionDenied) ||
		errors.Is(err, sftp.ErrSSHFxOpUnsupported) {
		return true
	}
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case sftp.ErrSSHFxNoSuchFile, sftp.ErrSSHFxPermissionDenied, sftp.ErrSSHFxOpUnsupported:
			return true
		}
	}
	// Rejected handshakes are authentication problems, not network blips.
	if strings.Contains(err.Error(), "unable to authenticate") {
		return true
	}
	if errors.Is(err, ErrExecUnsupported) {
		return true
	}
	return false
}
