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

package stats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/meridianchain/meridian"
)

func TestStatsURLParsing(t *testing.T) {
	cases := []struct {
		url              string
		node, pass, host string
		wantErr          bool
	}{
		{url: "alice:sekrit@stats.example.org:3000", node: "alice", pass: "sekrit", host: "stats.example.org:3000"},
		{url: "alice@stats.example.org:3000", node: "alice", host: "stats.example.org:3000"},
		{url: "alice:@stats.example.org:3000", node: "alice", host: "stats.example.org:3000"},
		{url: "node:vault:key@host:80", node: "node:vault", pass: "key", host: "host:80"},
		{url: "nohostpart", wantErr: true},
		{url: "trailing@", wantErr: true},
	}
	for _, c := range cases {
		svc, err := New(c.url, time.Second, log.NewLogger(log.DiscardHandler()))
		if c.wantErr {
			require.Error(t, err, c.url)
			continue
		}
		require.NoError(t, err, c.url)
		require.Equal(t, c.node, svc.node, c.url)
		require.Equal(t, c.pass, svc.pass, c.url)
		require.Equal(t, c.host, svc.host, c.url)
	}
}

type stubSource struct {
	stats meridian.NodeStats
}

func (s *stubSource) NodeStats() meridian.NodeStats { return s.stats }

// collector is a minimal stats server accepting one websocket client and
// forwarding its emitted messages.
func collector(t *testing.T) (*httptest.Server, chan []interface{}) {
	t.Helper()
	msgs := make(chan []interface{}, 16)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string][]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			msgs <- msg["emit"]
		}
	}))
	t.Cleanup(srv.Close)
	return srv, msgs
}

func nextEmit(t *testing.T, msgs chan []interface{}) (string, map[string]interface{}) {
	t.Helper()
	select {
	case emit := <-msgs:
		require.Len(t, emit, 2)
		topic, ok := emit[0].(string)
		require.True(t, ok)
		payload, ok := emit[1].(map[string]interface{})
		require.True(t, ok)
		return topic, payload
	case <-time.After(2 * time.Second):
		t.Fatal("no emit received")
		return "", nil
	}
}

func TestReportRoundTrip(t *testing.T) {
	srv, msgs := collector(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	svc, err := New("alice:sekrit@"+host, 25*time.Millisecond, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	src := &stubSource{stats: meridian.NodeStats{Name: "alice", Peers: 3, Sync: "synced"}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, src) }()

	// The first message authenticates, then snapshots follow.
	topic, payload := nextEmit(t, msgs)
	require.Equal(t, "hello", topic)
	require.Equal(t, "alice", payload["id"])
	require.Equal(t, "sekrit", payload["secret"])

	topic, payload = nextEmit(t, msgs)
	require.Equal(t, "stats", topic)
	require.Equal(t, "alice", payload["id"])
	stats, ok := payload["stats"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "alice", stats["name"])
	require.Equal(t, float64(3), stats["peers"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop on cancel")
	}
}

func TestRunContainsDeliveryFailures(t *testing.T) {
	// Nothing listens here; every report attempt fails.
	svc, err := New("alice:sekrit@127.0.0.1:1", 10*time.Millisecond, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, &stubSource{}) }()

	// Let a few ticks fail, then stop: failures must stay inside Run.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop on cancel")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not-a-stats-url", time.Second, log.NewLogger(log.DiscardHandler()))
	require.Error(t, err)
}
