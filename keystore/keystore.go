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

// Package keystore provides the default signing collaborator: an in-memory
// secp256k1 key ring. The orchestration layer only passes the handle to
// collaborators that need signatures; it never signs on its own.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownKey is returned when signing with an address the store does not
// hold a key for.
var ErrUnknownKey = errors.New("unknown key")

// KeyStore is the default meridian.Keystore.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

// New creates an empty key ring.
func New() *KeyStore {
	return &KeyStore{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

// NewKey generates and stores a fresh key, returning its address.
func (ks *KeyStore) NewKey() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	ks.mu.Lock()
	ks.keys[addr] = key
	ks.mu.Unlock()
	return addr, nil
}

// Import stores an existing key, returning its address.
func (ks *KeyStore) Import(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)

	ks.mu.Lock()
	ks.keys[addr] = key
	ks.mu.Unlock()
	return addr
}

// Sign implements meridian.Keystore, producing a recoverable secp256k1
// signature over the 32 byte digest.
func (ks *KeyStore) Sign(addr common.Address, digest []byte) ([]byte, error) {
	ks.mu.RLock()
	key, ok := ks.keys[addr]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, addr)
	}
	return crypto.Sign(digest, key)
}

// Addresses implements meridian.Keystore, listing the held addresses in a
// stable order.
func (ks *KeyStore) Addresses() []common.Address {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	addrs := make([]common.Address, 0, len(ks.keys))
	for addr := range ks.keys {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Hex() < addrs[j].Hex()
	})
	return addrs
}
