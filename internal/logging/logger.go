// Package logging provides the harvester's category file logs: one
// *zap.Logger-backed file per category (performance, detection, errors)
// under a run's logs_<ts>/ directory. Each line carries an ISO timestamp,
// the message and the Thread<N> tag, joined by " - ", in the order zap's
// console encoder writes them: "<ISO-ts> - <message> - {"thread": "Thread<N>"}".
//
// Grounded on internal/logging/logger.go's per-category lazily-created
// *Logger registry in the teacher repo, adapted from a stdlib log.Logger
// sink to a custom zapcore encoder config so category logging goes through
// go.uber.org/zap the way SPEC_FULL.md's ambient-stack section specifies.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one of the three log files spec.md §6 requires.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryDetection   Category = "detection"
	CategoryErrors      Category = "errors"
)

// lineEncoderConfig renders each entry via zap's console encoder: ISO
// timestamp, then the message, then the entry's fields (the "thread" field
// added by WorkerField) as a JSON object, each joined by " - ". The
// Thread<N> tag therefore follows the message rather than preceding it.
func lineEncoderConfig() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "T",
		MessageKey:       "M",
		LevelKey:         "",
		NameKey:          "",
		CallerKey:        "",
		StacktraceKey:    "",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// WorkerField tags a log entry with the worker ID so it renders as the
// "Thread<N>" token in the line format. N is the worker ID as given; the
// Phase Sequencer numbers its workers from 0.
func WorkerField(workerID int) zap.Field {
	return zap.String("thread", fmt.Sprintf("Thread%d", workerID))
}

// Registry owns one zap.Logger per category, all rooted under a single
// run's logs_<ts>/ directory.
type Registry struct {
	mu      sync.Mutex
	dir     string
	loggers map[Category]*zap.Logger
	closers []func() error
}

// NewRegistry creates (or reuses) the logs_<ts>/ directory and returns a
// Registry that lazily opens one file per category on first use.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir %s: %w", dir, err)
	}
	return &Registry{dir: dir, loggers: make(map[Category]*zap.Logger)}, nil
}

// Get returns (creating if necessary) the *zap.Logger for a category,
// writing ISO-ts/Thread-formatted lines to <dir>/<category>.log.
func (r *Registry) Get(cat Category) *zap.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[cat]; ok {
		return l
	}
	path := filepath.Join(r.dir, string(cat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Logging must never crash a worker; fall back to a discard logger.
		l := zap.NewNop()
		r.loggers[cat] = l
		return l
	}
	r.closers = append(r.closers, f.Close)

	core := zapcore.NewCore(lineEncoderConfig(), zapcore.AddSync(f), zapcore.DebugLevel)
	l := zap.New(core)
	r.loggers[cat] = l
	return l
}

// Close flushes and closes every opened category file.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TimestampedDir builds a "<prefix>_<ts>" directory name using a caller-
// supplied reference time, keeping directory naming deterministic/testable
// rather than reaching for time.Now() inside the helper.
func TimestampedDir(root, prefix string, ts time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", prefix, ts.Format("20060102_150405")))
}
