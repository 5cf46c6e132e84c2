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

// Package meridian defines the capability contracts between the node
// orchestration layer and the subsystems it supervises. The orchestration
// core never reaches past these interfaces into a collaborator's internals.
package meridian

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// Importer is the block storage and import capability. Implementations own
// their storage engine; calls on a single handle are applied sequentially.
type Importer interface {
	// ImportBlock validates and commits a block. Implementations may block on
	// storage, so callers running on the cooperative scheduler should route
	// the call through the task manager's blocking pool.
	ImportBlock(ctx context.Context, block *Block) (ImportOutcome, error)

	// BestBlock returns the current head summary.
	BestBlock() BlockInfo

	// SubscribeImportNotifications registers ch to receive a notification for
	// every committed block. The stream is infinite; a consumer that lost its
	// subscription restarts it by resubscribing.
	SubscribeImportNotifications(ch chan<- ImportNotification) event.Subscription
}

// TxPool is the transaction pool capability.
type TxPool interface {
	// Submit adds a transaction, returning its identifier. A full pool either
	// evicts its cheapest entry or rejects the newcomer with an eviction
	// error naming it.
	Submit(ctx context.Context, tx *Transaction) (common.Hash, error)

	// Prune drops transactions settled by an imported block. It is the sink
	// for import notifications, invoked by the orchestration wiring.
	Prune(block *Block)

	// Maintain performs periodic housekeeping. It is driven by a supervised
	// timer task owned by the pool's host service.
	Maintain(ctx context.Context)

	// Stats reports the number of pooled transactions.
	Stats() (pending int)
}

// Network is the peer-to-peer capability. The transport behind it is out of
// the orchestration layer's scope.
type Network interface {
	// Events returns the inbound event stream. The channel is bounded: when
	// the consumer stops draining, the network layer blocks rather than drop
	// events. The stream ends only when the network shuts down.
	Events() <-chan NetworkEvent

	// AnnounceBlock gossips a new best block hash to connected peers.
	AnnounceBlock(hash common.Hash)

	// SendTransactions pushes transactions to a specific peer.
	SendTransactions(peer string, txs []*Transaction) error
}

// Keystore is the signing capability. The orchestration core only hands it
// to collaborators; it never signs on its own behalf.
type Keystore interface {
	Sign(addr common.Address, digest []byte) ([]byte, error)
	Addresses() []common.Address
}

// StatsSource produces the status snapshot consumed by telemetry. The node
// service implements it by combining the bridge, pool and importer views.
type StatsSource interface {
	NodeStats() NodeStats
}

// StatsReporter is the telemetry capability: a best-effort push loop that
// runs as a supervised, never-essential task. Run returns only when ctx is
// cancelled; delivery failures stay inside the reporter.
type StatsReporter interface {
	Run(ctx context.Context, src StatsSource) error
}

// APIProvider is implemented by collaborators that expose RPC methods. The
// service builder collects the APIs of every registered component and mounts
// them on all configured transports.
type APIProvider interface {
	APIs() []rpc.API
}
