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

package simnet

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/meridianchain/meridian"
)

func testNetwork(buffer int) *Network {
	return New(buffer, log.NewLogger(log.DiscardHandler()))
}

func TestEventSequencing(t *testing.T) {
	net := testNetwork(8)
	defer net.Close()

	peer := net.Connect("alice")
	block := &meridian.Block{Number: 1}
	peer.AnnounceBlock(block)
	peer.SendTransactions(&meridian.Transaction{Nonce: 1, Price: uint256.NewInt(1)})

	events := net.Events()
	ev := <-events
	require.Equal(t, meridian.PeerConnected, ev.Type)
	require.Equal(t, "alice", ev.Peer)

	ev = <-events
	require.Equal(t, meridian.BlockAnnounced, ev.Type)
	require.Equal(t, uint64(1), ev.Seq)
	require.Equal(t, block, ev.Block)

	ev = <-events
	require.Equal(t, meridian.TransactionsReceived, ev.Type)
	require.Equal(t, uint64(2), ev.Seq)

	peer.Disconnect()
	ev = <-events
	require.Equal(t, meridian.PeerDisconnected, ev.Type)
}

func TestExplicitSequenceNumbers(t *testing.T) {
	net := testNetwork(8)
	defer net.Close()

	peer := net.Connect("alice")
	<-net.Events()

	peer.AnnounceBlockSeq(7, &meridian.Block{Number: 7})
	ev := <-net.Events()
	require.Equal(t, uint64(7), ev.Seq)
}

func TestCloseEndsStream(t *testing.T) {
	net := testNetwork(8)
	net.Connect("alice")
	require.NoError(t, net.Close())

	// Drain the connect event, then observe the close.
	for range net.Events() {
	}
	// Idempotent.
	require.NoError(t, net.Close())
}

func TestCloseReleasesBlockedInjector(t *testing.T) {
	net := testNetwork(1)
	peer := net.Connect("alice") // fills the buffer

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks on the full channel until close releases it.
		peer.AnnounceBlock(&meridian.Block{Number: 1})
	}()
	require.NoError(t, net.Close())
	wg.Wait()
}

func TestRecorders(t *testing.T) {
	net := testNetwork(8)
	defer net.Close()

	block := &meridian.Block{Number: 1}
	net.AnnounceBlock(block.Hash())
	require.Equal(t, []common.Hash{block.Hash()}, net.Announced())

	net.Connect("alice")
	txs := []*meridian.Transaction{{Nonce: 1, Price: uint256.NewInt(5)}}
	require.NoError(t, net.SendTransactions("alice", txs))
	require.Len(t, net.SentTo("alice"), 1)

	require.Error(t, net.SendTransactions("nobody", txs))
}
