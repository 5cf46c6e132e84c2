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

package meridian

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Block is the unit of chain data exchanged between the network, the importer
// and the pool. The orchestration layer treats its contents as opaque beyond
// the linking fields.
type Block struct {
	Number     uint64
	ParentHash common.Hash
	Time       uint64
	Extra      []byte
	Txs        []*Transaction
}

// Hash returns the keccak256 hash of the RLP encoded block.
func (b *Block) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		panic("block not RLP encodable: " + err.Error())
	}
	return crypto.Keccak256Hash(enc)
}

// Info returns the summary used in status snapshots and notifications.
func (b *Block) Info() BlockInfo {
	return BlockInfo{Hash: b.Hash(), Number: b.Number, ParentHash: b.ParentHash}
}

// BlockInfo summarizes a block without carrying its body.
type BlockInfo struct {
	Hash       common.Hash
	Number     uint64
	ParentHash common.Hash
}

// Transaction is a pooled transaction. Price doubles as the pool's eviction
// priority: when the pool is full, the cheapest transaction loses.
type Transaction struct {
	Nonce   uint64
	Price   *uint256.Int
	Payload []byte
}

// Hash returns the keccak256 hash of the RLP encoded transaction.
func (tx *Transaction) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(tx)
	if err != nil {
		panic("transaction not RLP encodable: " + err.Error())
	}
	return crypto.Keccak256Hash(enc)
}

// ImportOutcome describes what the importer did with a block.
type ImportOutcome int

const (
	ImportedBest ImportOutcome = iota // block extended the best chain
	ImportedSide                      // block was stored off the best chain
	AlreadyKnown                      // block was seen before, nothing done
)

func (o ImportOutcome) String() string {
	switch o {
	case ImportedBest:
		return "best"
	case ImportedSide:
		return "side"
	case AlreadyKnown:
		return "known"
	default:
		return "unknown"
	}
}

// ImportNotification is sent on the importer's notification feed after a
// block has been committed. IsBest marks notifications that moved the head.
type ImportNotification struct {
	Block  *Block
	IsBest bool
}

// SyncState is the network layer's coarse view of chain synchronization.
type SyncState int

const (
	Synced SyncState = iota
	Syncing
)

func (s SyncState) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "synced"
}

// NetworkStatus is the externally observable network snapshot. It is written
// only by the network bridge and read through copy-on-read atomics, so a
// retrieved value is immutable.
type NetworkStatus struct {
	Peers int
	Sync  SyncState
	Best  BlockInfo
}

// NetworkEventType enumerates the events a network implementation delivers.
type NetworkEventType int

const (
	PeerConnected NetworkEventType = iota
	PeerDisconnected
	BlockAnnounced
	TransactionsReceived
)

func (t NetworkEventType) String() string {
	switch t {
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	case BlockAnnounced:
		return "announce"
	case TransactionsReceived:
		return "txs"
	default:
		return "unknown"
	}
}

// NetworkEvent is one entry of the network event stream. Payload events from
// a peer carry a per-peer sequence number starting at 1 after the connect;
// the bridge applies them strictly in sequence order. Seq zero means the
// event is unordered.
type NetworkEvent struct {
	Type  NetworkEventType
	Peer  string
	Seq   uint64
	Block *Block         // set for BlockAnnounced
	Txs   []*Transaction // set for TransactionsReceived
}

// NodeStats is the snapshot pushed to telemetry collectors.
type NodeStats struct {
	Name       string        `json:"name"`
	Best       BlockInfo     `json:"best"`
	Peers      int           `json:"peers"`
	Sync       string        `json:"sync"`
	PendingTxs int           `json:"pendingTxs"`
	Goroutines int           `json:"goroutines"`
	CPUPercent float64       `json:"cpu"`
	MemUsed    uint64        `json:"memUsed"`
	Uptime     time.Duration `json:"uptime"`
}
