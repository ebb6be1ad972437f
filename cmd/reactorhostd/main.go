// File: cmd/reactorhostd/main.go
// reactorhostd is the engine's CLI: a required --config=PATH flag
// naming a configuration file, the optional --admin-addr and
// --redis-addr demo flags, and any unknown flags ignored. It loads the
// config, wires a Runtime (registering the statuscache demo service
// only when --redis-addr is set), and blocks until an orderly shutdown
// signal is handled.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/momentics/reactorhost/adapters/metrics"
	"github.com/momentics/reactorhost/engine"
	"github.com/momentics/reactorhost/examples/statuscache"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var adminAddr string
	var redisAddr string

	root := &cobra.Command{
		Use:           "reactorhostd",
		Short:         "Reactor-based multi-protocol service host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, adminAddr, redisAddr)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the configuration file (required)")
	_ = root.MarkFlagRequired("config")
	// These have no effect unless the operator opts into the demo
	// admin/statuscache wiring.
	root.Flags().StringVar(&adminAddr, "admin-addr", "", "optional loopback address to serve Prometheus metrics on")
	root.Flags().StringVar(&redisAddr, "redis-addr", "", "optional redis address backing the statuscache demo service")
	root.FParseErrWhitelist.UnknownFlags = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reactorhostd:", err)
		return 1
	}
	return 0
}

func serve(configPath, adminAddr, redisAddr string) error {
	cfg, err := engine.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rt, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		rt.RegisterService("statuscache", statuscache.New(rdb, rt.Pool, 10*time.Minute))
	}

	if err := rt.Start(); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if adminAddr != "" {
		sink := metrics.NewSink()
		admin := metrics.NewAdminServer(adminAddr, sink, rt.Probes)
		go func() {
			if err := admin.ListenAndServe(); err != nil {
				rt.Logger().Error("admin server stopped", "error", err)
			}
		}()
	}

	rt.Wait()
	return nil
}
