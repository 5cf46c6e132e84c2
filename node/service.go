// Copyright 2025 The meridian Authors
// This file is part of the meridian library.
//
// The meridian library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The meridian library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the meridian library. If not, see <http://www.gnu.org/licenses/>.

// Package node assembles the collaborators of a meridian node into one
// supervised process: the service builder wires storage, pool, network,
// keystore, RPC and telemetry together, and the resulting service runs every
// background job through the task supervisor until a single aggregated exit
// signal decides the shutdown.
package node

import (
	"context"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/meridianchain/meridian"
	"github.com/meridianchain/meridian/task"
)

// poolMaintenanceInterval is the tick of the pool housekeeping task.
const poolMaintenanceInterval = 10 * time.Second

const (
	initializingState = iota
	runningState
	closedState
)

type spawnSpec struct {
	name      string
	essential bool
	fn        func(context.Context) error
}

// Service is the immutable, fully wired bundle of collaborator handles
// produced once per process run by the ServiceBuilder. All handles are set
// before the service becomes observable and none is replaced afterwards; it
// is torn down exactly once, in reverse construction order.
type Service struct {
	log log.Logger
	cfg *Config

	tasks     *task.Manager
	chain     meridian.Importer
	pool      meridian.TxPool
	network   meridian.Network
	keystore  meridian.Keystore
	telemetry meridian.StatsReporter

	bridge     *bridge
	transports []transport
	rpcAPIs    []rpc.API

	startStop sync.Mutex
	state     int
	started   time.Time
}

// Start binds the RPC transports and spawns every background task. A
// transport that fails to bind aborts the start with a StartError after
// already-bound listeners were released again; no task has been spawned at
// that point.
func (s *Service) Start() error {
	s.startStop.Lock()
	defer s.startStop.Unlock()

	switch s.state {
	case runningState:
		return ErrServiceRunning
	case closedState:
		return ErrServiceStopped
	}
	// Bind all listeners before spawning anything, so binding failures stay
	// startup errors.
	for i, t := range s.transports {
		if err := t.start(s.rpcAPIs); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.transports[j].close()
			}
			return &StartError{Component: t.name(), Err: err}
		}
	}
	// The telemetry task reads the start time through NodeStats, so it must
	// be set before anything is spawned.
	s.started = time.Now()
	spawns := []spawnSpec{
		{"network-bridge", true, s.bridge.run},
		{"txpool-maintain", false, s.maintainPool},
	}
	for _, t := range s.transports {
		spawns = append(spawns, spawnSpec{t.name(), s.cfg.RPCEssential, t.serve})
	}
	if s.telemetry != nil {
		spawns = append(spawns, spawnSpec{"telemetry", false, func(ctx context.Context) error {
			return s.telemetry.Run(ctx, s)
		}})
	}
	for _, sp := range spawns {
		if err := s.tasks.Spawn(sp.name, sp.essential, sp.fn); err != nil {
			for i := len(s.transports) - 1; i >= 0; i-- {
				s.transports[i].close()
			}
			s.tasks.Shutdown()
			return &StartError{Component: sp.name, Err: err}
		}
	}
	s.state = runningState
	s.log.Info("Node started", "name", s.cfg.Name, "transports", len(s.transports))
	return nil
}

// maintainPool drives the pool's periodic housekeeping as a supervised,
// non-essential task.
func (s *Service) maintainPool(ctx context.Context) error {
	ticker := time.NewTicker(poolMaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.pool.Maintain(ctx)
		}
	}
}

// Wait blocks until the aggregated exit signal fires, feeding OS signals
// from sigc into the stop path.
func (s *Service) Wait(sigc <-chan os.Signal) task.ExitStatus {
	return task.Wait(s.tasks, sigc)
}

// Run is the process entry point: start, wait for the merged exit signal,
// tear down, and report the terminal status. A fatal path yields a non-zero
// exit code and one summarizing log line.
func (s *Service) Run(sigc <-chan os.Signal) task.ExitStatus {
	if err := s.Start(); err != nil {
		s.log.Error("Node startup failed", "err", err)
		s.Close()
		return task.ExitStatus{Code: task.Fatal, Err: err}
	}
	st := s.Wait(sigc)
	if err := s.Close(); err != nil {
		s.log.Warn("Teardown finished with errors", "err", err)
	}
	switch st.Code {
	case task.Fatal:
		s.log.Error("Node terminated", "task", st.Task, "err", st.Err)
	default:
		s.log.Info("Node stopped")
	}
	return st
}

// Close tears the service down in reverse construction order. Phase one
// cancels and drains the task set within the grace period; phase two
// releases any listener whose serve task was abandoned; phase three gives
// each closable collaborator a bounded chance at orderly release.
func (s *Service) Close() error {
	s.startStop.Lock()
	defer s.startStop.Unlock()

	if s.state == closedState {
		return ErrServiceStopped
	}
	s.state = closedState

	s.tasks.Shutdown()

	for i := len(s.transports) - 1; i >= 0; i-- {
		s.transports[i].close()
	}

	errs := make(map[string]error)
	closers := []struct {
		name   string
		handle interface{}
	}{
		// Reverse construction order: outer surfaces first, storage and
		// keys last.
		{"network", s.network},
		{"txpool", s.pool},
		{"chain", s.chain},
		{"keystore", s.keystore},
	}
	for _, c := range closers {
		closer, ok := c.handle.(io.Closer)
		if !ok {
			continue
		}
		if err := s.closeWithDeadline(c.name, closer); err != nil {
			errs[c.name] = err
		}
	}
	if len(errs) > 0 {
		return &StopError{Errors: errs}
	}
	return nil
}

// closeWithDeadline runs Close on its own goroutine and abandons it after
// the shutdown grace period; a stuck collaborator must not hang the process.
func (s *Service) closeWithDeadline(name string, closer io.Closer) error {
	done := make(chan error, 1)
	go func() { done <- closer.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Warn("Abandoning component teardown", "component", name, "grace", s.cfg.ShutdownGrace)
		return context.DeadlineExceeded
	}
}

// Tasks exposes the task supervisor, letting collaborators spawn their own
// supervised work against the shared exit signal.
func (s *Service) Tasks() *task.Manager { return s.tasks }

// Chain returns the storage/import handle.
func (s *Service) Chain() meridian.Importer { return s.chain }

// TxPool returns the transaction pool handle.
func (s *Service) TxPool() meridian.TxPool { return s.pool }

// Network returns the networking handle.
func (s *Service) Network() meridian.Network { return s.network }

// Keystore returns the signing handle.
func (s *Service) Keystore() meridian.Keystore { return s.keystore }

// NetworkStatus returns the bridge's current snapshot.
func (s *Service) NetworkStatus() meridian.NetworkStatus { return s.bridge.Status() }

// RPCEndpoints reports the bound transport addresses, in configuration
// order. Only started transports appear.
func (s *Service) RPCEndpoints() []string {
	var addrs []string
	for _, t := range s.transports {
		if a := t.addr(); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// NodeStats implements meridian.StatsSource. Resource usage beyond the
// runtime's own counters is filled in by the telemetry reporter.
func (s *Service) NodeStats() meridian.NodeStats {
	st := s.bridge.Status()
	return meridian.NodeStats{
		Name:       s.cfg.Name,
		Best:       st.Best,
		Peers:      st.Peers,
		Sync:       st.Sync.String(),
		PendingTxs: s.pool.Stats(),
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(s.started),
	}
}
