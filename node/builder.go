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
	"errors"

	"github.com/ethereum/go-ethereum/log"

	"github.com/meridianchain/meridian"
	"github.com/meridianchain/meridian/task"
)

// ServiceBuilder assembles one Service from individually registered
// collaborators. Registrations validate that their upstream dependencies are
// already present, so a misconfigured deployment fails before anything runs.
// A partially assembled service is never observable: only Build hands out
// the finished bundle, exactly once.
type ServiceBuilder struct {
	cfg *Config
	log log.Logger

	chain     meridian.Importer
	pool      meridian.TxPool
	keystore  meridian.Keystore
	network   meridian.Network
	telemetry meridian.StatsReporter

	built bool
}

// NewServiceBuilder creates a builder around the given configuration.
func NewServiceBuilder(cfg *Config) *ServiceBuilder {
	cfg = cfg.withDefaults()
	return &ServiceBuilder{cfg: cfg, log: cfg.logger()}
}

func (b *ServiceBuilder) register(name string, present bool, deps map[string]bool) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if present {
		return &DuplicateComponentError{Component: name}
	}
	for dep, ok := range deps {
		if !ok {
			return &MissingDependencyError{Component: name, Requires: dep}
		}
	}
	return nil
}

// WithChain registers the block storage/import collaborator.
func (b *ServiceBuilder) WithChain(chain meridian.Importer) error {
	if err := b.register("chain", b.chain != nil, nil); err != nil {
		return err
	}
	if chain == nil {
		return errors.New("nil chain handle")
	}
	b.chain = chain
	return nil
}

// WithTxPool registers the transaction pool. The pool prunes against
// imported blocks, so the chain must be registered first.
func (b *ServiceBuilder) WithTxPool(pool meridian.TxPool) error {
	if err := b.register("txpool", b.pool != nil, map[string]bool{"chain": b.chain != nil}); err != nil {
		return err
	}
	if pool == nil {
		return errors.New("nil txpool handle")
	}
	b.pool = pool
	return nil
}

// WithKeystore registers the signing collaborator. It has no upstream
// dependencies; the service only passes it through.
func (b *ServiceBuilder) WithKeystore(ks meridian.Keystore) error {
	if err := b.register("keystore", b.keystore != nil, nil); err != nil {
		return err
	}
	if ks == nil {
		return errors.New("nil keystore handle")
	}
	b.keystore = ks
	return nil
}

// WithNetwork registers the networking collaborator. Network wiring routes
// into both the importer and the pool, so both must be registered first.
func (b *ServiceBuilder) WithNetwork(network meridian.Network) error {
	deps := map[string]bool{"chain": b.chain != nil, "txpool": b.pool != nil}
	if err := b.register("network", b.network != nil, deps); err != nil {
		return err
	}
	if network == nil {
		return errors.New("nil network handle")
	}
	b.network = network
	return nil
}

// WithTelemetry registers the optional stats reporter. It snapshots chain
// and network state, so both must be registered first.
func (b *ServiceBuilder) WithTelemetry(reporter meridian.StatsReporter) error {
	deps := map[string]bool{"chain": b.chain != nil, "network": b.network != nil}
	if err := b.register("telemetry", b.telemetry != nil, deps); err != nil {
		return err
	}
	if reporter == nil {
		return errors.New("nil telemetry handle")
	}
	b.telemetry = reporter
	return nil
}

// Build validates completeness, performs the cross-component wiring and
// returns the immutable service bundle. It can succeed at most once per
// builder; later calls fail with ErrAlreadyBuilt and leave the first result
// untouched.
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	required := []struct {
		name    string
		present bool
	}{
		{"chain", b.chain != nil},
		{"txpool", b.pool != nil},
		{"keystore", b.keystore != nil},
		{"network", b.network != nil},
	}
	for _, r := range required {
		if !r.present {
			return nil, &MissingDependencyError{Component: "service", Requires: r.name}
		}
	}

	svc := &Service{
		log:       b.log,
		cfg:       b.cfg,
		chain:     b.chain,
		pool:      b.pool,
		network:   b.network,
		keystore:  b.keystore,
		telemetry: b.telemetry,
		tasks: task.NewManager(task.Config{
			Grace:           b.cfg.ShutdownGrace,
			BlockingWorkers: b.cfg.BlockingWorkers,
			Logger:          b.log,
		}),
	}
	// Cross-wiring: the bridge subscribes the pool to import notifications
	// and feeds new best blocks back to the network for gossip, keeping the
	// collaborators unaware of each other.
	svc.bridge = newBridge(b.log, b.chain, b.pool, b.network, b.cfg.BridgeBuffer)
	svc.bridge.tasks = svc.tasks

	svc.rpcAPIs = append(svc.rpcAPIs, svc.apis()...)
	for _, component := range []interface{}{b.chain, b.pool, b.network, b.keystore} {
		if provider, ok := component.(meridian.APIProvider); ok {
			svc.rpcAPIs = append(svc.rpcAPIs, provider.APIs()...)
		}
	}
	svc.transports = transportsFromConfig(b.cfg, b.log)

	b.built = true
	return svc, nil
}
