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

// Package chain provides the default block storage and import collaborator:
// a parent-linked block store over leveldb with head tracking and an import
// notification feed. Consensus and validation beyond parent linkage are out
// of its scope.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/meridianchain/meridian"
)

var (
	// ErrUnknownParent is returned when a block links to a parent that was
	// never imported.
	ErrUnknownParent = errors.New("unknown parent block")

	// ErrBlockNotFound is returned by lookups of missing blocks.
	ErrBlockNotFound = errors.New("block not found")
)

var (
	headBlockKey = []byte("LastBlock")
	blockPrefix  = []byte("b") // blockPrefix + hash -> RLP encoded block
)

func blockKey(hash common.Hash) []byte {
	return append(blockPrefix, hash.Bytes()...)
}

// Chain is the default meridian.Importer. A single handle applies its calls
// sequentially; the mutex also orders concurrent callers.
type Chain struct {
	log log.Logger
	db  *leveldb.DB

	mu   sync.RWMutex
	best meridian.BlockInfo

	feed  event.FeedOf[meridian.ImportNotification]
	scope event.SubscriptionScope
}

// New opens the block store in dir, committing genesis if the store is
// fresh. An empty dir keeps everything in memory.
func New(dir string, genesis *meridian.Block, logger log.Logger) (*Chain, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if dir == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	c := &Chain{
		log: logger.New("component", "chain"),
		db:  db,
	}
	head, err := db.Get(headBlockKey, nil)
	switch {
	case err == nil:
		if err := rlp.DecodeBytes(head, &c.best); err != nil {
			db.Close()
			return nil, fmt.Errorf("corrupt head entry: %v", err)
		}
		c.log.Info("Loaded chain head", "number", c.best.Number, "hash", c.best.Hash)

	case errors.Is(err, leveldb.ErrNotFound):
		if genesis == nil {
			db.Close()
			return nil, errors.New("fresh store needs a genesis block")
		}
		if err := c.commit(genesis, genesis.Info()); err != nil {
			db.Close()
			return nil, err
		}
		c.log.Info("Committed genesis block", "hash", c.best.Hash)

	default:
		db.Close()
		return nil, err
	}
	return c, nil
}

// commit writes a block and moves the head to it. Caller holds the lock (or
// is the constructor).
func (c *Chain) commit(block *meridian.Block, info meridian.BlockInfo) error {
	enc, err := rlp.EncodeToBytes(block)
	if err != nil {
		return err
	}
	if err := c.db.Put(blockKey(info.Hash), enc, nil); err != nil {
		return err
	}
	head, err := rlp.EncodeToBytes(&info)
	if err != nil {
		return err
	}
	if err := c.db.Put(headBlockKey, head, nil); err != nil {
		return err
	}
	c.best = info
	return nil
}

// ImportBlock implements meridian.Importer. Duplicate blocks are reported,
// not re-imported; blocks with an unknown parent are rejected.
func (c *Chain) ImportBlock(ctx context.Context, block *meridian.Block) (meridian.ImportOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info := block.Info()

	c.mu.Lock()
	known, err := c.db.Has(blockKey(info.Hash), nil)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if known {
		c.mu.Unlock()
		return meridian.AlreadyKnown, nil
	}
	if block.Number > 0 {
		haveParent, err := c.db.Has(blockKey(block.ParentHash), nil)
		if err != nil {
			c.mu.Unlock()
			return 0, err
		}
		if !haveParent {
			c.mu.Unlock()
			return 0, fmt.Errorf("%w: %s", ErrUnknownParent, block.ParentHash)
		}
	}
	isBest := block.Number > c.best.Number
	if isBest {
		err = c.commit(block, info)
	} else {
		var enc []byte
		if enc, err = rlp.EncodeToBytes(block); err == nil {
			err = c.db.Put(blockKey(info.Hash), enc, nil)
		}
	}
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	// Notify outside the lock; feed delivery suspends until every
	// subscriber has accepted the event.
	c.feed.Send(meridian.ImportNotification{Block: block, IsBest: isBest})

	if isBest {
		c.log.Debug("Imported new best block", "number", block.Number, "hash", info.Hash)
		return meridian.ImportedBest, nil
	}
	c.log.Debug("Imported side block", "number", block.Number, "hash", info.Hash)
	return meridian.ImportedSide, nil
}

// BestBlock implements meridian.Importer.
func (c *Chain) BestBlock() meridian.BlockInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best
}

// GetBlock returns a stored block by hash.
func (c *Chain) GetBlock(hash common.Hash) (*meridian.Block, error) {
	enc, err := c.db.Get(blockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	block := new(meridian.Block)
	if err := rlp.DecodeBytes(enc, block); err != nil {
		return nil, err
	}
	return block, nil
}

// SubscribeImportNotifications implements meridian.Importer.
func (c *Chain) SubscribeImportNotifications(ch chan<- meridian.ImportNotification) event.Subscription {
	return c.scope.Track(c.feed.Subscribe(ch))
}

// Close unsubscribes all notification consumers and releases the store.
func (c *Chain) Close() error {
	c.scope.Close()
	return c.db.Close()
}

// APIs implements meridian.APIProvider.
func (c *Chain) APIs() []rpc.API {
	return []rpc.API{
		{
			Namespace: "chain",
			Service:   &chainAPI{c},
		},
	}
}

type chainAPI struct {
	chain *Chain
}

// BestBlock reports the head summary.
func (api *chainAPI) BestBlock() meridian.BlockInfo {
	return api.chain.BestBlock()
}

// Block returns a stored block by hash.
func (api *chainAPI) Block(hash common.Hash) (*meridian.Block, error) {
	return api.chain.GetBlock(hash)
}
