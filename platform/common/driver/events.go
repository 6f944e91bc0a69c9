/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

// BlockNotification is a block received from the network.
// It is immutable once received.
type BlockNotification struct {
	// Number is the sequence number of the block in the ledger history
	Number BlockNum
	// Payload is the opaque content of the block
	Payload []byte
	// Transactions are the transactions the block carries, in block order
	Transactions []*TransactionNotification
}

// TransactionNotification is the commit outcome of a transaction, as reported by a node
type TransactionNotification struct {
	TxID TxID
	// Node is the node that reported the commit
	Node NodeID
	// Valid tells if the transaction was committed as valid
	Valid bool
	// Code is the ledger specific validation code
	Code    int32
	Payload []byte
}

// NodeDisconnectNotification signals that the connection to a node has been lost
type NodeDisconnectNotification struct {
	Node  NodeID
	Cause error
}

// BlockListener receives blocks
type BlockListener interface {
	// OnBlock is called for each block. A returned error is reported by the caller
	// and does not stop the delivery to other listeners.
	OnBlock(block *BlockNotification) error
}

// BlockListenerFunc adapts a function to a BlockListener
type BlockListenerFunc func(block *BlockNotification) error

func (f BlockListenerFunc) OnBlock(block *BlockNotification) error { return f(block) }

// DisconnectListener receives node disconnections
type DisconnectListener interface {
	OnDisconnect(event *NodeDisconnectNotification)
}

// DisconnectListenerFunc adapts a function to a DisconnectListener
type DisconnectListenerFunc func(event *NodeDisconnectNotification)

func (f DisconnectListenerFunc) OnDisconnect(event *NodeDisconnectNotification) { f(event) }
