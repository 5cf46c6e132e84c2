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
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/meridianchain/meridian"
	"github.com/meridianchain/meridian/task"
)

var (
	bridgeEventsMeter    = metrics.GetOrRegisterCounter("bridge/events", nil)
	bridgeImportsMeter   = metrics.GetOrRegisterCounter("bridge/imports", nil)
	bridgeTxsMeter       = metrics.GetOrRegisterCounter("bridge/txs", nil)
	bridgeReorderedMeter = metrics.GetOrRegisterCounter("bridge/reordered", nil)
	bridgePeersGauge     = metrics.GetOrRegisterGauge("bridge/peers", nil)
)

// bridge drives the network collaborator's event stream as one supervised
// essential task. It routes announced blocks to the importer, received
// transactions to the pool, and relays import notifications back out as
// block announcements. It is the only writer of the NetworkStatus snapshot.
type bridge struct {
	log   log.Logger
	chain meridian.Importer
	pool  meridian.TxPool
	net   meridian.Network
	tasks *task.Manager

	notifCh chan meridian.ImportNotification
	sub     event.Subscription

	// The fields below are owned by the run loop.
	peers       mapset.Set[string]
	seq         map[string]*peerSequencer
	highestSeen uint64

	status atomic.Pointer[meridian.NetworkStatus]
}

func newBridge(logger log.Logger, chain meridian.Importer, pool meridian.TxPool, network meridian.Network, notifBuf int) *bridge {
	b := &bridge{
		log:     logger.New("component", "bridge"),
		chain:   chain,
		pool:    pool,
		net:     network,
		notifCh: make(chan meridian.ImportNotification, notifBuf),
		peers:   mapset.NewThreadUnsafeSet[string](),
		seq:     make(map[string]*peerSequencer),
	}
	// Subscribe during assembly, not in the task body: a block committed
	// between the build and the task's first loop iteration must still be
	// announced and pruned, so the wiring cannot have a startup window.
	b.sub = chain.SubscribeImportNotifications(b.notifCh)
	return b
}

// Status returns the current network snapshot. The returned value is a copy
// and safe to hold across suspension points.
func (b *bridge) Status() meridian.NetworkStatus {
	if s := b.status.Load(); s != nil {
		return *s
	}
	return meridian.NetworkStatus{Best: b.chain.BestBlock()}
}

// run is the bridge task body. The inbound event channel is bounded by the
// network implementation; while the bridge is busy the network blocks, so a
// backlog delays events but never drops them.
func (b *bridge) run(ctx context.Context) error {
	defer func() { b.sub.Unsubscribe() }()

	events := b.net.Events()
	b.updateStatus()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				// The network layer is a core subsystem; its stream ending
				// means it considers itself done, which is fatal here.
				return errors.New("network event stream ended")
			}
			bridgeEventsMeter.Inc(1)
			b.handle(ctx, ev)

		case n := <-b.notifCh:
			b.notify(n)

		case err := <-b.sub.Err():
			// The notification stream is infinite and restartable; recover
			// it by resubscribing on the same channel.
			if err != nil {
				b.log.Warn("Import notification stream failed, resubscribing", "err", err)
			}
			b.sub = b.chain.SubscribeImportNotifications(b.notifCh)
		}
	}
}

// notify relays one committed block back out: best blocks are gossiped and
// every commit prunes the pool.
func (b *bridge) notify(n meridian.ImportNotification) {
	if n.IsBest {
		b.net.AnnounceBlock(n.Block.Hash())
	}
	b.pool.Prune(n.Block)
	b.updateStatus()
}

func (b *bridge) handle(ctx context.Context, ev meridian.NetworkEvent) {
	switch ev.Type {
	case meridian.PeerConnected:
		b.peers.Add(ev.Peer)
		b.seq[ev.Peer] = newPeerSequencer()
		b.log.Debug("Peer connected", "peer", ev.Peer)
		b.updateStatus()

	case meridian.PeerDisconnected:
		b.peers.Remove(ev.Peer)
		delete(b.seq, ev.Peer)
		b.log.Debug("Peer disconnected", "peer", ev.Peer)
		b.updateStatus()

	default:
		seq := b.seq[ev.Peer]
		if seq == nil || ev.Seq == 0 {
			b.apply(ctx, ev)
			return
		}
		ready, buffered := seq.push(ev)
		if buffered {
			bridgeReorderedMeter.Inc(1)
		}
		for _, rev := range ready {
			b.apply(ctx, rev)
		}
	}
}

// apply dispatches one in-order payload event. Import and pool errors are
// contained here: they are the collaborator's transient failures, not the
// orchestrator's.
func (b *bridge) apply(ctx context.Context, ev meridian.NetworkEvent) {
	switch ev.Type {
	case meridian.BlockAnnounced:
		if ev.Block == nil {
			return
		}
		if ev.Block.Number > b.highestSeen {
			// The announcement alone moves the sync target, whether or not
			// the import below succeeds.
			b.highestSeen = ev.Block.Number
			b.updateStatus()
		}
		var (
			outcome meridian.ImportOutcome
			done    = make(chan error, 1)
		)
		go func() {
			done <- b.tasks.RunBlocking(ctx, func() error {
				var err error
				outcome, err = b.chain.ImportBlock(ctx, ev.Block)
				return err
			})
		}()
		// Keep draining the notification channel while the import is in
		// flight: the commit sends into that same channel, and with the
		// buffer full the send would wedge with nobody left to drain it.
		var err error
	wait:
		for {
			select {
			case err = <-done:
				break wait
			case n := <-b.notifCh:
				b.notify(n)
			}
		}
		if err != nil {
			b.log.Warn("Block import failed", "peer", ev.Peer, "number", ev.Block.Number, "err", err)
			return
		}
		bridgeImportsMeter.Inc(1)
		b.log.Debug("Imported announced block", "peer", ev.Peer, "number", ev.Block.Number, "outcome", outcome)
		b.updateStatus()

	case meridian.TransactionsReceived:
		for _, tx := range ev.Txs {
			if _, err := b.pool.Submit(ctx, tx); err != nil {
				b.log.Debug("Rejected network transaction", "peer", ev.Peer, "err", err)
				continue
			}
			bridgeTxsMeter.Inc(1)
		}
	}
}

func (b *bridge) updateStatus() {
	best := b.chain.BestBlock()
	sync := meridian.Synced
	if b.highestSeen > best.Number {
		sync = meridian.Syncing
	}
	peers := b.peers.Cardinality()
	bridgePeersGauge.Update(int64(peers))
	b.status.Store(&meridian.NetworkStatus{Peers: peers, Sync: sync, Best: best})
}

// peerSequencer reorders one peer's payload events by their sequence number.
// Events surface strictly in order; a gap holds later arrivals back until it
// is filled. Sequencing starts at 1 after the peer connects.
type peerSequencer struct {
	next    uint64
	pending map[uint64]meridian.NetworkEvent
}

func newPeerSequencer() *peerSequencer {
	return &peerSequencer{next: 1, pending: make(map[uint64]meridian.NetworkEvent)}
}

// push adds an event and returns every event that became deliverable.
// buffered reports whether the event arrived ahead of a gap.
func (s *peerSequencer) push(ev meridian.NetworkEvent) (ready []meridian.NetworkEvent, buffered bool) {
	if ev.Seq < s.next {
		// Stale duplicate, already applied.
		return nil, false
	}
	s.pending[ev.Seq] = ev
	buffered = ev.Seq != s.next
	for {
		nextEv, ok := s.pending[s.next]
		if !ok {
			return ready, buffered
		}
		delete(s.pending, s.next)
		s.next++
		ready = append(ready, nextEv)
	}
}
