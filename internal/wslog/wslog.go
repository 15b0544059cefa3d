// Package wslog builds the [*slog.Logger] used throughout the router
// core (SPEC_FULL.md section 7.1): log/slog constructed via
// github.com/AdguardTeam/golibs/logutil/slogutil, passed down
// explicitly rather than kept as a package-level global.
//
// Grounded on internal/home/log.go's newSlogLogger: the same
// slogutil.Config{Format, Level, AddTimestamp} shape, trimmed to this
// daemon's needs (no syslog/eventlog/lumberjack rotation — the router
// core logs to its controlling process's stdout/stderr, left to the
// process supervisor to capture).
package wslog

import (
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Options configures [New].
type Options struct {
	// Verbose selects slog.LevelDebug over slog.LevelInfo.
	Verbose bool
}

// New returns a configured logger, or a discard logger in tests via
// [Discard].
func New(opts Options) *slog.Logger {
	lvl := slog.LevelInfo
	if opts.Verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger { return slogutil.NewDiscardLogger() }
