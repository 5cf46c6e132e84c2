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
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"
)

// transport is one RPC listener. Binding happens in start, before any task
// is spawned, so an occupied port surfaces as a startup error and never as a
// task failure. serve is the supervised task body.
type transport interface {
	name() string
	start(apis []rpc.API) error
	serve(ctx context.Context) error
	// addr reports the bound address, empty before start.
	addr() string
	// close force-releases the listener. Used for assembly rollback and as
	// the final teardown backstop; safe to call at any time, repeatedly.
	close()
}

// transportsFromConfig assembles the configured transports without binding
// them yet.
func transportsFromConfig(cfg *Config, logger log.Logger) []transport {
	var ts []transport
	if ep := cfg.HTTPEndpoint(); ep != "" {
		ts = append(ts, &httpTransport{
			log:       logger.New("transport", "http"),
			kind:      "http",
			endpoint:  ep,
			timeouts:  cfg.HTTPTimeouts,
			stopGrace: cfg.RPCStopGrace,
			wrap: func(srv *rpc.Server) http.Handler {
				return newCorsHandler(srv, cfg.HTTPCors)
			},
		})
	}
	if ep := cfg.WSEndpoint(); ep != "" {
		origins := cfg.WSOrigins
		ts = append(ts, &httpTransport{
			log:       logger.New("transport", "ws"),
			kind:      "ws",
			endpoint:  ep,
			timeouts:  rpc.DefaultHTTPTimeouts,
			stopGrace: cfg.RPCStopGrace,
			wrap: func(srv *rpc.Server) http.Handler {
				return srv.WebsocketHandler(origins)
			},
		})
	}
	if ep := cfg.IPCEndpoint(); ep != "" {
		ts = append(ts, &ipcTransport{
			log:      logger.New("transport", "ipc"),
			endpoint: ep,
		})
	}
	return ts
}

func newCorsHandler(h http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(h)
}

// httpTransport serves JSON-RPC over a plain HTTP or WebSocket listener,
// depending on the handler wrapper it was built with.
type httpTransport struct {
	log       log.Logger
	kind      string
	endpoint  string
	timeouts  rpc.HTTPTimeouts
	stopGrace time.Duration
	wrap      func(*rpc.Server) http.Handler

	mu       sync.Mutex
	srv      *rpc.Server
	httpSrv  *http.Server
	listener net.Listener
}

func (t *httpTransport) name() string { return "rpc-" + t.kind }

func (t *httpTransport) start(apis []rpc.API) error {
	srv := rpc.NewServer()
	for _, api := range apis {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			srv.Stop()
			return err
		}
	}
	listener, err := net.Listen("tcp", t.endpoint)
	if err != nil {
		srv.Stop()
		return err
	}
	t.mu.Lock()
	t.srv = srv
	t.listener = listener
	t.httpSrv = &http.Server{
		Handler:           t.wrap(srv),
		ReadTimeout:       t.timeouts.ReadTimeout,
		ReadHeaderTimeout: t.timeouts.ReadHeaderTimeout,
		WriteTimeout:      t.timeouts.WriteTimeout,
		IdleTimeout:       t.timeouts.IdleTimeout,
	}
	t.mu.Unlock()

	t.log.Info("RPC endpoint opened", "url", t.kind+"://"+listener.Addr().String())
	return nil
}

func (t *httpTransport) serve(ctx context.Context) error {
	t.mu.Lock()
	httpSrv, listener, srv := t.httpSrv, t.listener, t.srv
	t.mu.Unlock()
	if listener == nil {
		return errors.New("transport not started")
	}
	errc := make(chan error, 1)
	go func() {
		errc <- httpSrv.Serve(listener)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	// Let in-flight requests finish within the grace window, then cut the
	// remaining connections.
	sctx, cancel := context.WithTimeout(context.Background(), t.stopGrace)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		httpSrv.Close()
	}
	srv.Stop()
	t.log.Info("RPC endpoint closed", "url", t.kind+"://"+listener.Addr().String())
	return nil
}

func (t *httpTransport) addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *httpTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.httpSrv != nil {
		t.httpSrv.Close()
	}
	if t.listener != nil {
		t.listener.Close()
		t.listener = nil
	}
	if t.srv != nil {
		t.srv.Stop()
	}
}

// ipcTransport serves JSON-RPC on a unix domain socket.
type ipcTransport struct {
	log      log.Logger
	endpoint string

	mu       sync.Mutex
	srv      *rpc.Server
	listener net.Listener
}

func (t *ipcTransport) name() string { return "rpc-ipc" }

func (t *ipcTransport) start(apis []rpc.API) error {
	srv := rpc.NewServer()
	for _, api := range apis {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			srv.Stop()
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(t.endpoint), 0751); err != nil {
		srv.Stop()
		return err
	}
	os.Remove(t.endpoint) // clear a stale socket from an unclean shutdown
	listener, err := net.Listen("unix", t.endpoint)
	if err != nil {
		srv.Stop()
		return err
	}
	os.Chmod(t.endpoint, 0600)
	t.mu.Lock()
	t.srv = srv
	t.listener = listener
	t.mu.Unlock()

	t.log.Info("IPC endpoint opened", "url", t.endpoint)
	return nil
}

func (t *ipcTransport) serve(ctx context.Context) error {
	t.mu.Lock()
	srv, listener := t.srv, t.listener
	t.mu.Unlock()
	if listener == nil {
		return errors.New("transport not started")
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ServeListener(listener)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		listener.Close()
		srv.Stop()
		os.Remove(t.endpoint)
		t.log.Info("IPC endpoint closed", "url", t.endpoint)
		return nil
	}
}

func (t *ipcTransport) addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.endpoint
}

func (t *ipcTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		t.listener.Close()
		t.listener = nil
		os.Remove(t.endpoint)
	}
	if t.srv != nil {
		t.srv.Stop()
	}
}
