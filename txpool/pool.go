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

// Package txpool provides the default transaction pool collaborator: a
// capacity-bounded priority pool where the cheapest transaction loses when
// space runs out. Settled transactions are pruned through the import
// notification wiring; stale ones age out during maintenance.
package txpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/meridianchain/meridian"
)

var (
	// ErrAlreadyKnown is returned on resubmission of a pooled transaction.
	ErrAlreadyKnown = errors.New("transaction already known")

	// ErrInvalidTx is returned for transactions without a price.
	ErrInvalidTx = errors.New("transaction missing price")
)

// EvictedError reports a submission that lost the priority comparison
// against a full pool, naming the losing transaction.
type EvictedError struct {
	TxHash common.Hash
}

func (e *EvictedError) Error() string {
	return fmt.Sprintf("transaction %s evicted: priority below pool minimum", e.TxHash)
}

var (
	pendingGauge = metrics.GetOrRegisterGauge("txpool/pending", nil)
	evictedMeter = metrics.GetOrRegisterCounter("txpool/evicted", nil)
	prunedMeter  = metrics.GetOrRegisterCounter("txpool/pruned", nil)
	staleMeter   = metrics.GetOrRegisterCounter("txpool/stale", nil)
)

// Config tunes the pool. The zero value gets defaults.
type Config struct {
	// Capacity is the maximum number of pooled transactions.
	Capacity int

	// Lifetime is how long a transaction may sit in the pool before
	// maintenance drops it.
	Lifetime time.Duration
}

// DefaultConfig is used for unset config fields.
var DefaultConfig = Config{
	Capacity: 4096,
	Lifetime: 3 * time.Hour,
}

type entry struct {
	tx    *meridian.Transaction
	added time.Time
}

// Pool is the default meridian.TxPool.
type Pool struct {
	log log.Logger
	cfg Config

	mu  sync.Mutex
	all map[common.Hash]*entry
}

// New creates an empty pool.
func New(cfg Config, logger log.Logger) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig.Capacity
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultConfig.Lifetime
	}
	return &Pool{
		log: logger.New("component", "txpool"),
		cfg: cfg,
		all: make(map[common.Hash]*entry),
	}
}

// Submit implements meridian.TxPool. When the pool is full, the cheapest of
// the pooled transactions and the newcomer loses: either the incoming
// transaction is rejected with an EvictedError naming it, or the pooled
// minimum is dropped to make room.
func (p *Pool) Submit(ctx context.Context, tx *meridian.Transaction) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if tx == nil || tx.Price == nil {
		return common.Hash{}, ErrInvalidTx
	}
	hash := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.all[hash]; ok {
		return hash, ErrAlreadyKnown
	}
	if len(p.all) >= p.cfg.Capacity {
		minHash, minEntry := p.cheapest()
		if minEntry == nil || tx.Price.Cmp(minEntry.tx.Price) <= 0 {
			evictedMeter.Inc(1)
			return common.Hash{}, &EvictedError{TxHash: hash}
		}
		delete(p.all, minHash)
		evictedMeter.Inc(1)
		p.log.Debug("Evicted cheapest transaction", "hash", minHash, "price", minEntry.tx.Price)
	}
	p.all[hash] = &entry{tx: tx, added: time.Now()}
	pendingGauge.Update(int64(len(p.all)))
	return hash, nil
}

// cheapest returns the lowest-priced pooled entry. Caller holds the lock.
func (p *Pool) cheapest() (common.Hash, *entry) {
	var (
		minHash  common.Hash
		minEntry *entry
	)
	for hash, e := range p.all {
		if minEntry == nil || e.tx.Price.Cmp(minEntry.tx.Price) < 0 {
			minHash, minEntry = hash, e
		}
	}
	return minHash, minEntry
}

// Prune implements meridian.TxPool, dropping transactions settled by the
// imported block.
func (p *Pool) Prune(block *meridian.Block) {
	if block == nil || len(block.Txs) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var dropped int
	for _, tx := range block.Txs {
		hash := tx.Hash()
		if _, ok := p.all[hash]; ok {
			delete(p.all, hash)
			dropped++
		}
	}
	if dropped > 0 {
		prunedMeter.Inc(int64(dropped))
		pendingGauge.Update(int64(len(p.all)))
		p.log.Debug("Pruned settled transactions", "block", block.Number, "dropped", dropped)
	}
}

// Maintain implements meridian.TxPool, aging out transactions that sat in
// the pool past their lifetime.
func (p *Pool) Maintain(ctx context.Context) {
	deadline := time.Now().Add(-p.cfg.Lifetime)

	p.mu.Lock()
	defer p.mu.Unlock()

	var dropped int
	for hash, e := range p.all {
		if e.added.Before(deadline) {
			delete(p.all, hash)
			dropped++
		}
	}
	if dropped > 0 {
		staleMeter.Inc(int64(dropped))
		pendingGauge.Update(int64(len(p.all)))
		p.log.Debug("Dropped stale transactions", "dropped", dropped)
	}
}

// Stats implements meridian.TxPool.
func (p *Pool) Stats() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Content returns the pooled transactions keyed by identifier, mainly for
// inspection over RPC and in tests.
func (p *Pool) Content() map[common.Hash]*meridian.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	content := make(map[common.Hash]*meridian.Transaction, len(p.all))
	for hash, e := range p.all {
		content[hash] = e.tx
	}
	return content
}
