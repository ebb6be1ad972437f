// File: lifecycle/signals.go
// Package lifecycle wires POSIX signal handling to the engine's
// shutdown, log-rotation, and fatal-fault paths.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lifecycle

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
)

// allStacks captures a backtrace of every goroutine, growing the
// buffer until runtime.Stack stops truncating it (runtime.Stack gives
// no way to size it exactly up front).
func allStacks() []byte {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Handler bundles the callbacks Signals wires to the recognized
// signal groups.
type Handler struct {
	// Shutdown is invoked once for TERM/INT/QUIT/HUP. HUP is reserved
	// for reload but currently triggers the same orderly shutdown as
	// the others.
	Shutdown func()
	// RotateLogs is invoked for USR1.
	RotateLogs func()
	// DumpBacktraces is invoked for USR2 and for fatal faults, before
	// the process exits in the fatal case.
	DumpBacktraces func(trace []byte)
}

// Signals owns the os/signal subscription and dispatch goroutine.
type Signals struct {
	log     hclog.Logger
	handler Handler

	ch   chan os.Signal
	stop chan struct{}
	once sync.Once
}

// New subscribes to every signal the engine recognizes and returns a
// Signals ready for Run. PIPE is subscribed to and discarded rather
// than left on the OS default (process termination on some
// platforms).
func New(log hclog.Logger, h Handler) *Signals {
	s := &Signals{
		log:     log,
		handler: h,
		ch:      make(chan os.Signal, 8),
		stop:    make(chan struct{}),
	}
	signal.Notify(s.ch,
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP,
		syscall.SIGUSR1, syscall.SIGUSR2,
		syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGABRT, syscall.SIGFPE,
		syscall.SIGPIPE,
	)
	return s
}

// Run dispatches signals until Close is called. Intended to be run on
// its own goroutine for the lifetime of the process.
func (s *Signals) Run() {
	for {
		select {
		case sig := <-s.ch:
			s.dispatch(sig)
		case <-s.stop:
			return
		}
	}
}

func (s *Signals) dispatch(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP:
		s.log.Info("received shutdown signal", "signal", sig.String())
		if s.handler.Shutdown != nil {
			s.handler.Shutdown()
		}
	case syscall.SIGUSR1:
		s.log.Info("received log-rotate signal")
		if s.handler.RotateLogs != nil {
			s.handler.RotateLogs()
		}
	case syscall.SIGUSR2:
		s.log.Info("received backtrace-dump signal")
		if s.handler.DumpBacktraces != nil {
			s.handler.DumpBacktraces(allStacks())
		}
	case syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGABRT, syscall.SIGFPE:
		trace := allStacks()
		s.log.Error("fatal process fault", "signal", sig.String(), "stack", string(trace))
		if s.handler.DumpBacktraces != nil {
			s.handler.DumpBacktraces(trace)
		}
		os.Exit(1)
	case syscall.SIGPIPE:
		// discarded.
	}
}

// Close stops Run and unsubscribes from all signals. Idempotent.
func (s *Signals) Close() {
	s.once.Do(func() {
		signal.Stop(s.ch)
		close(s.stop)
	})
}
