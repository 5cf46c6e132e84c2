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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderMissingDependency(t *testing.T) {
	parts := newTestParts(t)
	b := NewServiceBuilder(testConfig())

	// The pool prunes against imported blocks; without a chain it must be
	// rejected.
	err := b.WithTxPool(parts.pool)
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "txpool", missing.Component)
	require.Equal(t, "chain", missing.Requires)

	// Network needs both chain and pool.
	require.NoError(t, b.WithChain(parts.chain))
	err = b.WithNetwork(parts.network)
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "network", missing.Component)
	require.Equal(t, "txpool", missing.Requires)
}

func TestBuilderDuplicateComponent(t *testing.T) {
	parts := newTestParts(t)
	b := NewServiceBuilder(testConfig())

	require.NoError(t, b.WithChain(parts.chain))
	require.NoError(t, b.WithTxPool(parts.pool))
	require.NoError(t, b.WithKeystore(parts.keys))
	require.NoError(t, b.WithNetwork(parts.network))

	other := newTestParts(t)
	err := b.WithNetwork(other.network)
	var dup *DuplicateComponentError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "network", dup.Component)

	// The first registration is retained and used by the eventual build.
	svc, err := b.Build()
	require.NoError(t, err)
	require.Same(t, parts.network, svc.Network())
}

func TestBuilderBuildTwice(t *testing.T) {
	parts := newTestParts(t)
	b := newCompleteBuilder(t, parts)

	svc, err := b.Build()
	require.NoError(t, err)

	second, err := b.Build()
	require.ErrorIs(t, err, ErrAlreadyBuilt)
	require.Nil(t, second)

	// The first result is unaffected and still usable.
	require.NoError(t, svc.Start())
	require.Same(t, parts.chain, svc.Chain())
	require.NoError(t, svc.Close())
}

func TestBuilderIncomplete(t *testing.T) {
	parts := newTestParts(t)
	b := NewServiceBuilder(testConfig())
	require.NoError(t, b.WithChain(parts.chain))

	svc, err := b.Build()
	require.Nil(t, svc)
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "txpool", missing.Requires)
}

func TestBuilderRejectsAfterBuild(t *testing.T) {
	parts := newTestParts(t)
	b := newCompleteBuilder(t, parts)
	_, err := b.Build()
	require.NoError(t, err)

	other := newTestParts(t)
	require.ErrorIs(t, b.WithChain(other.chain), ErrAlreadyBuilt)
	require.ErrorIs(t, b.WithKeystore(other.keys), ErrAlreadyBuilt)
}

func TestBuilderNilHandle(t *testing.T) {
	b := NewServiceBuilder(testConfig())
	require.Error(t, b.WithChain(nil))
}
