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

// Package task implements the supervisor for the node's background jobs.
//
// Every long-running goroutine of the process is spawned through a Manager
// under a unique name and an essential/non-essential classification. The
// manager aggregates all shutdown triggers into a single terminal ExitStatus:
// the first of an essential task ending, an explicit stop request or an
// injected OS signal wins, and later triggers are no-ops. Cancellation is
// cooperative; tasks that outlive the grace period are abandoned and named in
// the logs, never force-killed.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultGrace is the shutdown grace period used when the config leaves
	// it unset.
	DefaultGrace = 5 * time.Second

	// DefaultBlockingWorkers bounds the blocking-work pool when unset.
	DefaultBlockingWorkers = 16
)

var (
	// ErrTerminated is returned by Spawn once the manager has reached a
	// terminal status; no new task is accepted afterwards.
	ErrTerminated = errors.New("task manager terminated")

	// ErrDuplicateTask is returned by Spawn when the task name was already
	// used during this process run.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrEssentialEnded is the failure reason recorded when an essential task
	// returns without error. For a process expected to run indefinitely, a
	// core subsystem deciding it is done is itself fatal.
	ErrEssentialEnded = errors.New("essential task ended")
)

// Code classifies a terminal exit.
type Code int

const (
	Running      Code = iota // not terminal yet
	GracefulStop             // explicit stop request or OS signal
	Fatal                    // essential task terminated
)

func (c Code) String() string {
	switch c {
	case Running:
		return "running"
	case GracefulStop:
		return "graceful"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ExitStatus is the single terminal outcome of a process run. Once written
// it never changes; the first trigger wins.
type ExitStatus struct {
	Code Code
	Task string // task that triggered the exit, if any
	Err  error  // non-nil when Code == Fatal
}

// ExitCode maps the status onto a process exit code.
func (s ExitStatus) ExitCode() int {
	if s.Code == Fatal {
		return 1
	}
	return 0
}

// Config tunes a Manager. The zero value is usable.
type Config struct {
	// Grace is how long Shutdown waits for tasks to observe cancellation
	// before abandoning them.
	Grace time.Duration

	// BlockingWorkers bounds the number of concurrent RunBlocking calls so
	// synchronous storage work cannot starve the scheduler.
	BlockingWorkers int64

	Logger log.Logger
}

type runningTask struct {
	name      string
	essential bool
	done      chan struct{}
}

// Manager spawns, tracks and terminates the node's background tasks.
type Manager struct {
	log      log.Logger
	grace    time.Duration
	blocking *semaphore.Weighted

	ctx    context.Context // cancelled once terminal
	cancel context.CancelFunc
	quit   chan struct{} // closed once terminal

	mu     sync.Mutex
	tasks  map[string]*runningTask // every name ever spawned
	wg     sync.WaitGroup
	status ExitStatus
}

// NewManager creates a task manager ready for spawning.
func NewManager(cfg Config) *Manager {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.BlockingWorkers <= 0 {
		cfg.BlockingWorkers = DefaultBlockingWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:      cfg.Logger,
		grace:    cfg.Grace,
		blocking: semaphore.NewWeighted(cfg.BlockingWorkers),
		ctx:      ctx,
		cancel:   cancel,
		quit:     make(chan struct{}),
		tasks:    make(map[string]*runningTask),
	}
}

// Spawn registers fn as a named background task and starts it. The context
// handed to fn is cancelled once the manager reaches a terminal status; fn
// must observe it at every suspension point. Names are unique for the whole
// process run so diagnostics stay unambiguous.
//
// An essential task ending, whether in success or error, forces the whole
// process to exit. A non-essential task's error is logged and contained.
func (m *Manager) Spawn(name string, essential bool, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.status.Code != Running {
		m.mu.Unlock()
		return ErrTerminated
	}
	if _, ok := m.tasks[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}
	t := &runningTask{name: name, essential: essential, done: make(chan struct{})}
	m.tasks[name] = t
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Debug("Spawned task", "name", name, "essential", essential)
	go m.run(t, fn)
	return nil
}

func (m *Manager) run(t *runningTask, fn func(ctx context.Context) error) {
	defer m.wg.Done()
	defer close(t.done)

	err, panicked := m.invoke(t.name, fn)

	if t.essential {
		reason := err
		if reason == nil {
			reason = ErrEssentialEnded
		}
		// During a graceful stop an essential task winding down is the
		// expected outcome; terminate is a no-op then (first writer wins).
		m.terminate(ExitStatus{Code: Fatal, Task: t.name, Err: reason})
		return
	}
	switch {
	case panicked:
		m.log.Error("Task crashed", "name", t.name, "err", err)
	case err != nil && !errors.Is(err, context.Canceled):
		m.log.Error("Task failed", "name", t.name, "err", err)
	default:
		m.log.Debug("Task finished", "name", t.name)
	}
}

// invoke runs fn, converting a panic into an error outcome. Returned errors
// and recovered faults are classified identically; they differ only in log
// detail.
func (m *Manager) invoke(name string, fn func(ctx context.Context) error) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("task %q panicked: %v", name, r)
			m.log.Error("Task panicked", "name", name, "err", r, "stack", string(debug.Stack()))
		}
	}()
	return fn(m.ctx), false
}

// terminate records the terminal status and broadcasts cancellation. The
// first caller wins; later calls are no-ops.
func (m *Manager) terminate(st ExitStatus) {
	m.mu.Lock()
	if m.status.Code != Running {
		m.mu.Unlock()
		return
	}
	m.status = st
	m.mu.Unlock()

	switch st.Code {
	case GracefulStop:
		m.log.Info("Stopping tasks", "reason", "stop requested")
	default:
		m.log.Error("Essential task terminated, shutting down", "name", st.Task, "err", st.Err)
	}
	close(m.quit)
	m.cancel()
}

// RequestStop forces a graceful terminal status. It is a no-op if the
// manager is already terminal.
func (m *Manager) RequestStop() {
	m.terminate(ExitStatus{Code: GracefulStop})
}

// ExitSignal returns a channel closed exactly once, when the manager reaches
// its terminal status. The status itself is available from Status.
func (m *Manager) ExitSignal() <-chan struct{} {
	return m.quit
}

// Status returns the current exit status. Before the exit signal fires the
// code is Running.
func (m *Manager) Status() ExitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Shutdown cancels all tasks (requesting a graceful stop if no terminal
// status was set yet) and waits up to the grace period for them to exit.
// Tasks still alive afterwards are abandoned and named in the logs. It
// returns the final exit status.
func (m *Manager) Shutdown() ExitStatus {
	m.RequestStop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.grace):
		for _, name := range m.Running() {
			m.log.Warn("Abandoning unresponsive task", "name", name, "grace", m.grace)
		}
	}
	return m.Status()
}

// Running returns the names of tasks that have not completed yet.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name, t := range m.tasks {
		select {
		case <-t.done:
		default:
			names = append(names, name)
		}
	}
	return names
}

// RunBlocking executes fn on the bounded blocking-work pool. It is meant for
// synchronous storage or filesystem calls issued from cooperative tasks; the
// semaphore keeps them from monopolizing the runtime's threads. Acquisition
// is abandoned when ctx is cancelled.
func (m *Manager) RunBlocking(ctx context.Context, fn func() error) error {
	if err := m.blocking.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.blocking.Release(1)
	return fn()
}
