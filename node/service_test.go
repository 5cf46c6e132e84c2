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
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/meridianchain/meridian"
	"github.com/meridianchain/meridian/chain"
	"github.com/meridianchain/meridian/keystore"
	"github.com/meridianchain/meridian/simnet"
	"github.com/meridianchain/meridian/task"
	"github.com/meridianchain/meridian/txpool"
)

type testParts struct {
	chain   *chain.Chain
	pool    *txpool.Pool
	keys    *keystore.KeyStore
	network *simnet.Network
	genesis *meridian.Block
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// testConfig disables all transports and shortens the grace periods so
// teardown paths run quickly.
func testConfig() *Config {
	return &Config{
		Name:          "testnode",
		ShutdownGrace: 500 * time.Millisecond,
		RPCStopGrace:  100 * time.Millisecond,
		BridgeBuffer:  32,
		Logger:        testLogger(),
	}
}

func newTestParts(t *testing.T) *testParts {
	t.Helper()
	genesis := &meridian.Block{Number: 0, Extra: []byte("test genesis")}
	c, err := chain.New("", genesis, testLogger())
	require.NoError(t, err)
	return &testParts{
		chain:   c,
		pool:    txpool.New(txpool.DefaultConfig, testLogger()),
		keys:    keystore.New(),
		network: simnet.New(32, testLogger()),
		genesis: genesis,
	}
}

func newCompleteBuilder(t *testing.T, parts *testParts) *ServiceBuilder {
	t.Helper()
	b := NewServiceBuilder(testConfig())
	require.NoError(t, b.WithChain(parts.chain))
	require.NoError(t, b.WithTxPool(parts.pool))
	require.NoError(t, b.WithKeystore(parts.keys))
	require.NoError(t, b.WithNetwork(parts.network))
	return b
}

func newTestService(t *testing.T, cfg *Config) (*Service, *testParts) {
	t.Helper()
	parts := newTestParts(t)
	b := NewServiceBuilder(cfg)
	require.NoError(t, b.WithChain(parts.chain))
	require.NoError(t, b.WithTxPool(parts.pool))
	require.NoError(t, b.WithKeystore(parts.keys))
	require.NoError(t, b.WithNetwork(parts.network))
	svc, err := b.Build()
	require.NoError(t, err)
	return svc, parts
}

// childBlock derives a valid successor of parent, distinguished by tag.
func childBlock(parent *meridian.Block, tag string) *meridian.Block {
	return &meridian.Block{
		Number:     parent.Number + 1,
		ParentHash: parent.Hash(),
		Extra:      []byte(tag),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestServiceLifecycle(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	require.NoError(t, svc.Start())
	require.ErrorIs(t, svc.Start(), ErrServiceRunning)

	require.NoError(t, svc.Close())
	require.ErrorIs(t, svc.Close(), ErrServiceStopped)
	require.ErrorIs(t, svc.Start(), ErrServiceStopped)
}

func TestServiceEssentialExit(t *testing.T) {
	svc, parts := newTestService(t, testConfig())
	require.NoError(t, svc.Start())

	// Killing the network ends the bridge's event stream, which is an
	// essential task: the aggregated exit signal must fire as fatal.
	parts.network.Close()

	select {
	case <-svc.Tasks().ExitSignal():
	case <-time.After(2 * time.Second):
		t.Fatal("exit signal did not fire after network death")
	}
	st := svc.Tasks().Status()
	require.Equal(t, task.Fatal, st.Code)
	require.Equal(t, "network-bridge", st.Task)
	require.NotEqual(t, 0, st.ExitCode())

	require.NoError(t, svc.Close())
}

func TestServiceStopRequest(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	require.NoError(t, svc.Start())

	go svc.Tasks().RequestStop()
	st := svc.Wait(nil)
	require.Equal(t, task.GracefulStop, st.Code)
	require.Equal(t, 0, st.ExitCode())
	require.NoError(t, svc.Close())
}

func TestServiceTransports(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPHost = "127.0.0.1"
	cfg.HTTPPort = 0
	cfg.WSHost = "127.0.0.1"
	cfg.WSPort = 0
	cfg.IPCPath = filepath.Join(t.TempDir(), "test.ipc")

	svc, _ := newTestService(t, cfg)
	require.NoError(t, svc.Start())

	endpoints := svc.RPCEndpoints()
	require.Len(t, endpoints, 3)
	httpAddr, wsAddr, ipcPath := endpoints[0], endpoints[1], endpoints[2]

	// The HTTP transport answers a JSON-RPC round trip.
	client, err := rpc.Dial("http://" + httpAddr)
	require.NoError(t, err)
	var info NodeInfo
	require.NoError(t, client.CallContext(context.Background(), &info, "admin_nodeInfo"))
	require.Equal(t, "testnode", info.Name)
	require.Equal(t, "synced", info.Sync)
	client.Close()

	_, err = os.Stat(ipcPath)
	require.NoError(t, err, "ipc socket missing")

	require.NoError(t, svc.Close())

	// Every listener must be released: the addresses bind again and the
	// socket file is gone.
	for _, addr := range []string{httpAddr, wsAddr} {
		l, err := net.Listen("tcp", addr)
		require.NoError(t, err, "address %s not released", addr)
		l.Close()
	}
	_, err = os.Stat(ipcPath)
	require.True(t, os.IsNotExist(err), "ipc socket not removed")
}

func TestServiceBindFailure(t *testing.T) {
	// Occupy a port so the WS transport cannot bind.
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.HTTPHost = "127.0.0.1"
	cfg.HTTPPort = 0
	cfg.WSHost = "127.0.0.1"
	cfg.WSPort = taken.Addr().(*net.TCPAddr).Port

	svc, _ := newTestService(t, cfg)
	err = svc.Start()
	var start *StartError
	require.ErrorAs(t, err, &start)
	require.Equal(t, "rpc-ws", start.Component)

	// Binding failed before any task was spawned, and the HTTP listener was
	// rolled back; freeing the port lets a retry succeed.
	require.Empty(t, svc.Tasks().Running())
	taken.Close()
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Close())
}

func TestServiceRunFatalExitCode(t *testing.T) {
	svc, parts := newTestService(t, testConfig())

	done := make(chan task.ExitStatus, 1)
	go func() { done <- svc.Run(nil) }()
	waitFor(t, func() bool {
		return len(svc.Tasks().Running()) > 0
	}, "service did not start")

	parts.network.Close()
	select {
	case st := <-done:
		require.Equal(t, task.Fatal, st.Code)
		require.Equal(t, 1, st.ExitCode())
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after fatal task exit")
	}
}

// captureReporter records the first snapshot it is handed, then idles.
type captureReporter struct {
	snap chan meridian.NodeStats
}

func (r *captureReporter) Run(ctx context.Context, src meridian.StatsSource) error {
	select {
	case r.snap <- src.NodeStats():
	default:
	}
	<-ctx.Done()
	return nil
}

func TestServiceStartTimeVisibleToTasks(t *testing.T) {
	parts := newTestParts(t)
	b := newCompleteBuilder(t, parts)
	rep := &captureReporter{snap: make(chan meridian.NodeStats, 1)}
	require.NoError(t, b.WithTelemetry(rep))
	svc, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, svc.Start())
	defer svc.Close()

	// The telemetry task may snapshot immediately; the start time must
	// already be set, or the uptime would read as decades.
	select {
	case st := <-rep.snap:
		require.GreaterOrEqual(t, st.Uptime, time.Duration(0))
		require.Less(t, st.Uptime, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry task never ran")
	}
}

func TestServiceNodeStats(t *testing.T) {
	svc, parts := newTestService(t, testConfig())
	require.NoError(t, svc.Start())
	defer svc.Close()

	_, err := parts.pool.Submit(context.Background(), &meridian.Transaction{Nonce: 1, Price: price(10)})
	require.NoError(t, err)

	st := svc.NodeStats()
	require.Equal(t, "testnode", st.Name)
	require.Equal(t, parts.genesis.Hash(), st.Best.Hash)
	require.Equal(t, 1, st.PendingTxs)
	require.Greater(t, st.Goroutines, 0)
}
