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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestBlockHashIdentity(t *testing.T) {
	b := &Block{
		Number: 1,
		Extra:  []byte("one"),
		Txs:    []*Transaction{{Nonce: 1, Price: uint256.NewInt(5)}},
	}
	require.Equal(t, b.Hash(), b.Hash(), "hash not deterministic")

	other := &Block{Number: 1, Extra: []byte("two")}
	require.NotEqual(t, b.Hash(), other.Hash(), "distinct blocks collide")

	info := b.Info()
	require.Equal(t, b.Hash(), info.Hash)
	require.Equal(t, b.Number, info.Number)
}

func TestTransactionHashIdentity(t *testing.T) {
	tx := &Transaction{Nonce: 1, Price: uint256.NewInt(5), Payload: []byte("data")}
	require.Equal(t, tx.Hash(), tx.Hash())

	other := &Transaction{Nonce: 2, Price: uint256.NewInt(5), Payload: []byte("data")}
	require.NotEqual(t, tx.Hash(), other.Hash())
}

func TestEnumStrings(t *testing.T) {
	require.Equal(t, "best", ImportedBest.String())
	require.Equal(t, "side", ImportedSide.String())
	require.Equal(t, "known", AlreadyKnown.String())
	require.Equal(t, "synced", Synced.String())
	require.Equal(t, "syncing", Syncing.String())
	require.Equal(t, "announce", BlockAnnounced.String())
}
