/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

// NamedDriver binds a driver to the persistence type it implements
type NamedDriver[D any] struct {
	Name   PersistenceType
	Driver D
}

type (
	TxID     = string
	BlockNum = uint64
	NodeID   = string
)

// PersistenceType names a storage backend
type PersistenceType string

// ListenerHandle identifies a registration on a BlockSource or a DisconnectSource
type ListenerHandle uint64
