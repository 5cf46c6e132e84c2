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

// Package simnet provides an in-process network collaborator. Simulated
// peers inject sequence-tagged events into the bounded stream the bridge
// consumes; outbound announcements and transaction pushes are recorded for
// inspection. It backs the dev node and the orchestration tests.
package simnet

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/meridianchain/meridian"
)

// DefaultBuffer is the event channel capacity when unset. A full channel
// blocks the injecting peer, mirroring transport backpressure.
const DefaultBuffer = 256

// Network is an in-process meridian.Network.
type Network struct {
	log    log.Logger
	events chan meridian.NetworkEvent
	quit   chan struct{}
	closed atomic.Bool
	emits  sync.WaitGroup

	mu        sync.Mutex
	peers     map[string]*Peer
	announced []common.Hash
	sent      map[string][]*meridian.Transaction
}

// New creates a network with the given event buffer capacity.
func New(buffer int, logger log.Logger) *Network {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Network{
		log:    logger.New("component", "simnet"),
		events: make(chan meridian.NetworkEvent, buffer),
		quit:   make(chan struct{}),
		peers:  make(map[string]*Peer),
		sent:   make(map[string][]*meridian.Transaction),
	}
}

// Events implements meridian.Network.
func (n *Network) Events() <-chan meridian.NetworkEvent {
	return n.events
}

// AnnounceBlock implements meridian.Network, recording the gossip.
func (n *Network) AnnounceBlock(hash common.Hash) {
	n.mu.Lock()
	n.announced = append(n.announced, hash)
	n.mu.Unlock()
	n.log.Debug("Announced block", "hash", hash)
}

// SendTransactions implements meridian.Network, recording the push.
func (n *Network) SendTransactions(peer string, txs []*meridian.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[peer]; !ok {
		return fmt.Errorf("unknown peer %q", peer)
	}
	n.sent[peer] = append(n.sent[peer], txs...)
	return nil
}

// Announced returns the hashes gossiped so far.
func (n *Network) Announced() []common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]common.Hash, len(n.announced))
	copy(out, n.announced)
	return out
}

// SentTo returns the transactions pushed to a peer.
func (n *Network) SentTo(peer string) []*meridian.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*meridian.Transaction, len(n.sent[peer]))
	copy(out, n.sent[peer])
	return out
}

// Connect registers a simulated peer and emits its connect event. The
// peer's payload events are numbered from 1.
func (n *Network) Connect(id string) *Peer {
	p := &Peer{net: n, id: id}
	n.mu.Lock()
	n.peers[id] = p
	n.mu.Unlock()

	n.emit(meridian.NetworkEvent{Type: meridian.PeerConnected, Peer: id})
	return p
}

// Close ends the event stream. Pending injectors are released first so the
// channel close cannot race an in-flight send.
func (n *Network) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(n.quit)
	n.emits.Wait()
	close(n.events)
	return nil
}

func (n *Network) emit(ev meridian.NetworkEvent) {
	n.emits.Add(1)
	defer n.emits.Done()
	if n.closed.Load() {
		return
	}
	select {
	case n.events <- ev:
	case <-n.quit:
	}
}

// Peer is a simulated remote peer.
type Peer struct {
	net *Network
	id  string

	mu  sync.Mutex
	seq uint64
}

// ID returns the peer identifier.
func (p *Peer) ID() string { return p.id }

func (p *Peer) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// AnnounceBlock injects a block announcement with the next sequence number.
func (p *Peer) AnnounceBlock(block *meridian.Block) {
	p.AnnounceBlockSeq(p.nextSeq(), block)
}

// AnnounceBlockSeq injects a block announcement under an explicit sequence
// number, letting tests deliver out of wall-clock order.
func (p *Peer) AnnounceBlockSeq(seq uint64, block *meridian.Block) {
	p.net.emit(meridian.NetworkEvent{
		Type:  meridian.BlockAnnounced,
		Peer:  p.id,
		Seq:   seq,
		Block: block,
	})
}

// SendTransactions injects a transaction delivery with the next sequence
// number.
func (p *Peer) SendTransactions(txs ...*meridian.Transaction) {
	p.SendTransactionsSeq(p.nextSeq(), txs...)
}

// SendTransactionsSeq injects a transaction delivery under an explicit
// sequence number.
func (p *Peer) SendTransactionsSeq(seq uint64, txs ...*meridian.Transaction) {
	p.net.emit(meridian.NetworkEvent{
		Type: meridian.TransactionsReceived,
		Peer: p.id,
		Seq:  seq,
		Txs:  txs,
	})
}

// Disconnect deregisters the peer and emits its disconnect event.
func (p *Peer) Disconnect() {
	p.net.mu.Lock()
	delete(p.net.peers, p.id)
	p.net.mu.Unlock()

	p.net.emit(meridian.NetworkEvent{Type: meridian.PeerDisconnected, Peer: p.id})
}
