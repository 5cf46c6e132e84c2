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
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/meridianchain/meridian"
)

// apis returns the built-in RPC descriptors of the node itself. Collaborator
// APIs are appended by the builder.
func (s *Service) apis() []rpc.API {
	return []rpc.API{
		{
			Namespace: "admin",
			Service:   &adminAPI{s},
		},
	}
}

// adminAPI exposes the node's orchestration state over RPC.
type adminAPI struct {
	svc *Service
}

// NodeInfo is the admin_nodeInfo response.
type NodeInfo struct {
	Name       string             `json:"name"`
	Best       meridian.BlockInfo `json:"best"`
	Peers      int                `json:"peers"`
	Sync       string             `json:"sync"`
	PendingTxs int                `json:"pendingTxs"`
}

// NodeInfo reports the externally observable node status.
func (api *adminAPI) NodeInfo() NodeInfo {
	st := api.svc.NetworkStatus()
	return NodeInfo{
		Name:       api.svc.cfg.Name,
		Best:       st.Best,
		Peers:      st.Peers,
		Sync:       st.Sync.String(),
		PendingTxs: api.svc.pool.Stats(),
	}
}

// Peers reports the connected peer count.
func (api *adminAPI) Peers() int {
	return api.svc.NetworkStatus().Peers
}

// BestBlock reports the head summary.
func (api *adminAPI) BestBlock() meridian.BlockInfo {
	return api.svc.chain.BestBlock()
}

// Tasks lists the currently running supervised tasks.
func (api *adminAPI) Tasks() []string {
	names := api.svc.tasks.Running()
	sort.Strings(names)
	return names
}

// Accounts lists the keystore's addresses.
func (api *adminAPI) Accounts() []common.Address {
	return api.svc.keystore.Addresses()
}
