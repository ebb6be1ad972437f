// File: engine/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured logging via hclog. Rotate implements the USR1
// disposition by reopening the log output file in place.

package engine

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// RotatingLogger wraps an hclog.Logger writing to a file path that can
// be reopened in place (e.g. after logrotate(8) renames it).
type RotatingLogger struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  hclog.Logger
}

// NewRotatingLogger opens path (or uses stderr if path is empty) and
// wraps it in an hclog.Logger named after the process.
func NewRotatingLogger(path, processName string) (*RotatingLogger, error) {
	rl := &RotatingLogger{path: path}
	if err := rl.open(); err != nil {
		return nil, err
	}
	rl.log = hclog.New(&hclog.LoggerOptions{
		Name:   processName,
		Level:  hclog.Info,
		Output: rl.file,
	})
	return rl, nil
}

func (rl *RotatingLogger) open() error {
	if rl.path == "" {
		rl.file = os.Stderr
		return nil
	}
	f, err := os.OpenFile(rl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	rl.file = f
	return nil
}

// Logger returns the current hclog.Logger.
func (rl *RotatingLogger) Logger() hclog.Logger {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.log
}

// Rotate closes and reopens the underlying file, then repoints the
// hclog.Logger's output at it. Invoked from the USR1 signal handler.
func (rl *RotatingLogger) Rotate() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.path == "" {
		return // stderr needs no rotation
	}
	old := rl.file
	if err := rl.open(); err != nil {
		rl.log.Error("log rotation failed, keeping previous file open", "error", err)
		rl.file = old
		return
	}
	if old != os.Stderr {
		_ = old.Close()
	}
	if resettable, ok := rl.log.(hclog.OutputResettable); ok {
		_ = resettable.ResetOutput(&hclog.LoggerOptions{Output: rl.file})
	}
}
