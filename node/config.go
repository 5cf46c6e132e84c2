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

package node

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Config collects the orchestration knobs of a node service. Deployment
// environments control transport addresses and telemetry endpoints through
// it, never orchestration behavior beyond the documented grace periods.
type Config struct {
	// Name is the instance name reported over RPC and telemetry.
	Name string `toml:"-"`

	// DataDir is the root for file resources such as the IPC socket. Empty
	// means ephemeral: no files are created.
	DataDir string

	// HTTPHost enables the HTTP RPC transport when non-empty.
	HTTPHost string
	HTTPPort int
	// HTTPCors is the Cross-Origin Resource Sharing header to send to
	// requesting clients.
	HTTPCors []string
	// HTTPTimeouts shape the deadlines of the HTTP transport.
	HTTPTimeouts rpc.HTTPTimeouts

	// WSHost enables the WebSocket RPC transport when non-empty.
	WSHost string
	WSPort int
	// WSOrigins is the list of origins accepted for websocket upgrades.
	WSOrigins []string

	// IPCPath enables the IPC transport when non-empty. Relative paths are
	// resolved inside DataDir.
	IPCPath string

	// RPCEssential marks the RPC transport tasks essential, so a dying
	// listener takes the node down with it. Meant for test harnesses.
	RPCEssential bool

	// ShutdownGrace bounds each teardown phase: the task cancellation wait
	// and every collaborator's release.
	ShutdownGrace time.Duration

	// RPCStopGrace bounds how long a stopping transport waits for in-flight
	// requests before force-closing connections.
	RPCStopGrace time.Duration

	// TelemetryInterval is the tick between telemetry reports.
	TelemetryInterval time.Duration

	// BridgeBuffer is the capacity of the bridge's inbound import
	// notification buffer.
	BridgeBuffer int

	// BlockingWorkers bounds the task manager's blocking-work pool.
	BlockingWorkers int64

	// Logger is the root logger of the service. Components derive their own
	// from it; no logging state is read from globals.
	Logger log.Logger `toml:"-"`
}

// DefaultConfig holds the sane defaults; cmd overlays file and flag values
// on top of it.
var DefaultConfig = Config{
	Name:              "meridian",
	HTTPPort:          8645,
	HTTPTimeouts:      rpc.DefaultHTTPTimeouts,
	WSPort:            8646,
	IPCPath:           "meridian.ipc",
	ShutdownGrace:     5 * time.Second,
	RPCStopGrace:      2 * time.Second,
	TelemetryInterval: 15 * time.Second,
	BridgeBuffer:      256,
	BlockingWorkers:   16,
}

// HTTPEndpoint resolves the HTTP listening address, empty when disabled.
func (c *Config) HTTPEndpoint() string {
	if c.HTTPHost == "" {
		return ""
	}
	return net.JoinHostPort(c.HTTPHost, fmt.Sprintf("%d", c.HTTPPort))
}

// WSEndpoint resolves the WebSocket listening address, empty when disabled.
func (c *Config) WSEndpoint() string {
	if c.WSHost == "" {
		return ""
	}
	return net.JoinHostPort(c.WSHost, fmt.Sprintf("%d", c.WSPort))
}

// IPCEndpoint resolves the IPC socket path, empty when disabled.
func (c *Config) IPCEndpoint() string {
	if c.IPCPath == "" {
		return ""
	}
	if filepath.IsAbs(c.IPCPath) {
		return c.IPCPath
	}
	if c.DataDir == "" {
		return c.IPCPath
	}
	return filepath.Join(c.DataDir, c.IPCPath)
}

// logger returns the configured logger, falling back to the root one.
func (c *Config) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Root()
}

// withDefaults fills unset durations and sizes from DefaultConfig.
func (c *Config) withDefaults() *Config {
	cc := *c
	if cc.Name == "" {
		cc.Name = DefaultConfig.Name
	}
	if cc.ShutdownGrace <= 0 {
		cc.ShutdownGrace = DefaultConfig.ShutdownGrace
	}
	if cc.RPCStopGrace <= 0 {
		cc.RPCStopGrace = DefaultConfig.RPCStopGrace
	}
	if cc.TelemetryInterval <= 0 {
		cc.TelemetryInterval = DefaultConfig.TelemetryInterval
	}
	if cc.BridgeBuffer <= 0 {
		cc.BridgeBuffer = DefaultConfig.BridgeBuffer
	}
	if cc.BlockingWorkers <= 0 {
		cc.BlockingWorkers = DefaultConfig.BlockingWorkers
	}
	return &cc
}
