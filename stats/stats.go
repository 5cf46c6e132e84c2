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

// Package stats implements the telemetry reporting service: a periodic,
// best-effort push of the node's status snapshot to a monitoring collector
// over a websocket. Delivery failures never cross into the orchestrator;
// the reporter drops its connection, backs off and tries again on a later
// tick.
package stats

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/meridianchain/meridian"
)

const (
	// connectTimeout bounds the websocket handshake.
	connectTimeout = 10 * time.Second

	// maxBackoff caps the delay between reconnection attempts.
	maxBackoff = 30 * time.Second

	messageSizeLimit = 15 * 1024 * 1024
)

// Service pushes node statistics to a monitoring server. It implements
// meridian.StatsReporter and is always run as a non-essential task.
type Service struct {
	log      log.Logger
	node     string // name displayed on the monitoring page
	pass     string // password authorizing the stats push
	host     string // remote address of the monitoring service
	interval time.Duration

	conn     *connWrapper
	failures uint
	nextTry  time.Time
}

// New creates a reporting service from a nodename:secret@host:port URL. The
// secret is optional; node names may themselves contain colons, so the last
// separator of each kind wins.
func New(url string, interval time.Duration, logger log.Logger) (*Service, error) {
	at := strings.LastIndexByte(url, '@')
	if at < 0 || at == len(url)-1 {
		return nil, fmt.Errorf("invalid stats url: %q, should be nodename:secret@host:port", url)
	}
	s := &Service{
		log:      logger.New("component", "stats"),
		node:     url[:at],
		host:     url[at+1:],
		interval: interval,
	}
	if colon := strings.LastIndexByte(s.node, ':'); colon >= 0 {
		s.node, s.pass = s.node[:colon], s.node[colon+1:]
	}
	if s.interval <= 0 {
		s.interval = 15 * time.Second
	}
	return s, nil
}

// Run implements meridian.StatsReporter. It reports on every tick and
// returns only once ctx is cancelled; any delivery error is contained.
func (s *Service) Run(ctx context.Context, src meridian.StatsSource) error {
	s.log.Info("Stats reporting started", "host", s.host, "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			s.log.Info("Stats reporting stopped")
			return nil

		case <-ticker.C:
			if time.Now().Before(s.nextTry) {
				continue
			}
			if err := s.report(ctx, src.NodeStats()); err != nil {
				s.failures++
				s.disconnect()
				backoff := min(time.Duration(s.failures)*s.interval, maxBackoff)
				s.nextTry = time.Now().Add(backoff)
				s.log.Debug("Stats report failed", "err", err, "retry", backoff)
				continue
			}
			s.failures = 0
		}
	}
}

// report delivers one snapshot, dialing and authenticating first if no
// connection is live.
func (s *Service) report(ctx context.Context, stats meridian.NodeStats) error {
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}
	s.fillResources(&stats)
	report := map[string]interface{}{
		"id":    s.node,
		"stats": stats,
	}
	return s.conn.WriteJSON(map[string][]interface{}{"emit": {"stats", report}})
}

func (s *Service) connect(ctx context.Context) error {
	url := s.host
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	header := make(http.Header)
	header.Set("Origin", "http://localhost")

	conn, _, err := dialer.DialContext(ctx, url+"/api", header)
	if err != nil {
		return err
	}
	s.conn = newConnWrapper(conn)

	auth := map[string]interface{}{
		"id":     s.node,
		"secret": s.pass,
	}
	if err := s.conn.WriteJSON(map[string][]interface{}{"emit": {"hello", auth}}); err != nil {
		s.disconnect()
		return err
	}
	s.log.Debug("Stats collector connected", "url", url)
	return nil
}

func (s *Service) disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// fillResources adds host resource usage to the snapshot. Failures leave the
// fields zero; a partial report beats none.
func (s *Service) fillResources(stats *meridian.NodeStats) {
	if usage, err := cpu.Percent(0, false); err == nil && len(usage) > 0 {
		stats.CPUPercent = usage[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsed = vm.Used
	}
}

// connWrapper serializes writes on the websocket; gorilla connections allow
// only one concurrent writer.
type connWrapper struct {
	conn *websocket.Conn

	wlock sync.Mutex
	rlock sync.Mutex
}

func newConnWrapper(conn *websocket.Conn) *connWrapper {
	conn.SetReadLimit(messageSizeLimit)
	return &connWrapper{conn: conn}
}

// WriteJSON wraps the websocket method, safe for concurrent calling.
func (w *connWrapper) WriteJSON(v interface{}) error {
	w.wlock.Lock()
	defer w.wlock.Unlock()
	return w.conn.WriteJSON(v)
}

// ReadJSON wraps the websocket method, safe for concurrent calling.
func (w *connWrapper) ReadJSON(v interface{}) error {
	w.rlock.Lock()
	defer w.rlock.Unlock()
	return w.conn.ReadJSON(v)
}

// Close can run concurrently with readers and writers.
func (w *connWrapper) Close() error {
	return w.conn.Close()
}
