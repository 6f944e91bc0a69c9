/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

// BlockSource delivers blocks to its listeners.
// An upstream source gives no ordering nor uniqueness guarantee.
type BlockSource interface {
	AddBlockListener(listener BlockListener) ListenerHandle
	RemoveBlockListener(handle ListenerHandle)
}

// DisconnectSource delivers the disconnections of a single node
type DisconnectSource interface {
	Node() NodeID
	AddDisconnectListener(listener DisconnectListener) ListenerHandle
	RemoveDisconnectListener(handle ListenerHandle)
}
