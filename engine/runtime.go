// File: engine/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime wires the engine together: the Reactor/WorkerPool/
// TimerWheel trio, the per-transport Acceptors and registries, the
// hostname resolver, the LPS manager, and the signal-driven lifecycle
// — all owned by one value constructed at startup, never package-level
// singletons, so tests construct private Runtime instances.

package engine

import (
	"crypto/tls"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/momentics/reactorhost/codec"
	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/control"
	"github.com/momentics/reactorhost/core/queue"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/core/workerpool"
	"github.com/momentics/reactorhost/lifecycle"
	"github.com/momentics/reactorhost/lps"
	"github.com/momentics/reactorhost/protocol/httpf"
	"github.com/momentics/reactorhost/protocol/packet"
	"github.com/momentics/reactorhost/protocol/status"
	"github.com/momentics/reactorhost/protocol/ws"
	"github.com/momentics/reactorhost/reactor"
	"github.com/momentics/reactorhost/registry"
	"github.com/momentics/reactorhost/resolver"
	"github.com/momentics/reactorhost/service"
	"github.com/momentics/reactorhost/transport/tcp"
)

const (
	defaultBufCap   = 4096
	defaultBacklog  = 1024
	resolverShards  = 32
	lpsShards       = 32
)

// Runtime is the fully-wired engine instance one process runs.
type Runtime struct {
	cfg    *Config
	Log    *RotatingLogger
	Wheel  *timer.Wheel
	Tasks  *queue.TaskQueue
	Pool   *workerpool.Pool
	Re     *reactor.Reactor
	Res    *resolver.Resolver
	LPS    *lps.Manager
	Probes *control.Probes

	services map[string]service.Service
	tlsCfgs  map[string]*tls.Config

	signals   *lifecycle.Signals
	acceptors []*tcp.Acceptor

	mu       sync.Mutex
	shutdown bool
	done     chan struct{}
}

// New constructs a Runtime from a loaded Config. It does not yet bind
// any listeners — call RegisterService (and RegisterTLSConfig for any
// transport with secure: true) before Start.
func New(cfg *Config) (*Runtime, error) {
	log, err := NewRotatingLogger("", cfg.ProcessName)
	if err != nil {
		return nil, fmt.Errorf("engine: logger: %w", err)
	}

	wheel := timer.New(nil)
	tasks := queue.New(nil)

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	pool := workerpool.New(workers, tasks, wheel)

	re, err := reactor.New(pool)
	if err != nil {
		return nil, fmt.Errorf("engine: reactor: %w", err)
	}

	return &Runtime{
		cfg:      cfg,
		Log:      log,
		Wheel:    wheel,
		Tasks:    tasks,
		Pool:     pool,
		Re:       re,
		Res:      resolver.New(resolverShards),
		LPS:      lps.NewManager(lpsShards, wheel, codec.JSON{}),
		Probes:   control.NewProbes(),
		services: make(map[string]service.Service),
		tlsCfgs:  make(map[string]*tls.Config),
		done:     make(chan struct{}),
	}, nil
}

// RegisterService binds a concrete handler implementation under the
// name a transports[].services[].type entry in config will reference.
func (rt *Runtime) RegisterService(serviceType string, svc service.Service) {
	rt.services[serviceType] = svc
}

// RegisterTLSConfig supplies the crypto/tls.Config to use for a
// transport named transportName with secure: true.
func (rt *Runtime) RegisterTLSConfig(transportName string, cfg *tls.Config) {
	rt.tlsCfgs[transportName] = cfg
}

// Start binds every configured transport's listener, registers it
// with the Reactor, and brings up the signal-driven lifecycle. The
// Reactor's dispatch loop runs on its own goroutine.
func (rt *Runtime) Start() error {
	for _, tc := range rt.cfg.Transports {
		if err := rt.startTransport(tc); err != nil {
			return err
		}
	}

	go rt.Re.Run()

	rt.signals = lifecycle.New(rt.Log.Logger(), lifecycle.Handler{
		Shutdown:       rt.Shutdown,
		RotateLogs:     rt.Log.Rotate,
		DumpBacktraces: rt.dumpProbes,
	})
	go rt.signals.Run()

	return nil
}

func (rt *Runtime) dumpProbes(trace []byte) {
	rt.Log.Logger().Info("debug dump", "probes", rt.Probes.DumpState(), "stack", string(trace))
}

func (rt *Runtime) startTransport(tc TransportConfig) error {
	addr := fmt.Sprintf("%s:%d", tc.Host, tc.Port)

	var newConn tcp.NewConnFunc
	switch tc.Type {
	case "http", "ws":
		reg := registry.New()
		for _, sv := range tc.Services {
			svc, ok := rt.services[sv.Type]
			if !ok {
				return fmt.Errorf("engine: transport %q references unregistered service %q", tc.Name, sv.Type)
			}
			if sv.Type == "ws" || tc.Type == "ws" {
				reg.Register(sv.Path, ws.Handler(service.WSHandler(svc)))
			} else {
				reg.Register(sv.Path, service.HTTPHandler(svc))
			}
		}
		lookup := registry.Typed[httpf.Handler](reg)
		sniffPolicy := tc.Type == "ws"
		newConn = func(fd int, peer string) *conn.Connection {
			c := conn.New(fd, conn.KindTCPServer, peer, rt.Wheel, defaultBufCap, defaultBufCap)
			c.Driver = httpf.New(lookup)
			if sniffPolicy {
				// Flash policy probes arrive on the same port as the
				// upgrade request and must be answered before any HTTP
				// parsing.
				c.Driver = ws.WithPolicySniff(c.Driver)
			}
			return c
		}

	case "packet":
		svc, err := rt.firstService(tc)
		if err != nil {
			return err
		}
		handler := service.PacketHandler(svc)
		newConn = func(fd int, peer string) *conn.Connection {
			c := conn.New(fd, conn.KindTCPServer, peer, rt.Wheel, defaultBufCap, defaultBufCap)
			c.Driver = packet.New(handler)
			return c
		}

	case "status":
		svc, err := rt.firstService(tc)
		if err != nil {
			return err
		}
		handler := service.StatusHandler(svc)
		newConn = func(fd int, peer string) *conn.Connection {
			c := conn.New(fd, conn.KindTCPServer, peer, rt.Wheel, defaultBufCap, defaultBufCap)
			c.Driver = status.New(handler)
			return c
		}

	default:
		return fmt.Errorf("engine: transport %q has unsupported type %q", tc.Name, tc.Type)
	}

	if tc.Secure {
		cfg, ok := rt.tlsCfgs[tc.Name]
		if !ok {
			return fmt.Errorf("engine: transport %q is secure but has no registered TLS config", tc.Name)
		}
		inner := newConn
		newConn = func(fd int, peer string) *conn.Connection {
			c := inner(fd, peer)
			c.AttachTLS(cfg, true)
			return c
		}
	}

	acc, err := tcp.Listen(addr, defaultBacklog, rt.Wheel, newConn)
	if err != nil {
		return fmt.Errorf("engine: transport %q listen %s: %w", tc.Name, addr, err)
	}
	acc.SetErrorFunc(func(err error) {
		rt.Log.Logger().Error("acceptor terminated", "transport", tc.Name, "error", err)
	})
	if err := acc.Register(rt.Re); err != nil {
		return fmt.Errorf("engine: transport %q register acceptor: %w", tc.Name, err)
	}

	rt.mu.Lock()
	rt.acceptors = append(rt.acceptors, acc)
	rt.mu.Unlock()

	rt.Probes.RegisterProbe("transport."+tc.Name+".connections", func() any { return rt.Re.Len() })

	return nil
}

func (rt *Runtime) firstService(tc TransportConfig) (service.Service, error) {
	if len(tc.Services) == 0 {
		return nil, fmt.Errorf("engine: transport %q declares no services", tc.Name)
	}
	svc, ok := rt.services[tc.Services[0].Type]
	if !ok {
		return nil, fmt.Errorf("engine: transport %q references unregistered service %q", tc.Name, tc.Services[0].Type)
	}
	return svc, nil
}

// Shutdown winds the engine down in order. Signal handlers and
// repeated calls are both idempotent.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	if rt.shutdown {
		rt.mu.Unlock()
		return
	}
	rt.shutdown = true
	rt.mu.Unlock()

	rt.Log.Logger().Info("shutting down")
	rt.Re.Shutdown()
	rt.Pool.Close()
	if rt.signals != nil {
		rt.signals.Close()
	}
	close(rt.done)
}

// Wait blocks until Shutdown has completed, for a main() that just
// needs to sit until a TERM/INT/QUIT/HUP signal (or an explicit
// Shutdown call) winds the process down.
func (rt *Runtime) Wait() {
	<-rt.done
}

// Logger exposes the Runtime's structured logger for application code
// wiring additional services.
func (rt *Runtime) Logger() hclog.Logger { return rt.Log.Logger() }
