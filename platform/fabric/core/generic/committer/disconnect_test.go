/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"testing"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectHub(t *testing.T) {
	var calls []string
	slot := NewSlot(func(event *driver.NodeDisconnectNotification) {
		calls = append(calls, "original:"+event.Node)
	})
	hub := NewDisconnectHub("peer0", slot)
	assert.Equal(t, "peer0", hub.Node())

	h := hub.AddDisconnectListener(driver.DisconnectListenerFunc(func(event *driver.NodeDisconnectNotification) {
		calls = append(calls, "listener:"+event.Node)
	}))
	hub.AddDisconnectListener(driver.DisconnectListenerFunc(func(*driver.NodeDisconnectNotification) {
		panic("broken listener")
	}))

	slot.Fire(&driver.NodeDisconnectNotification{})
	assert.Equal(t, []string{"listener:peer0", "original:peer0"}, calls)

	hub.RemoveDisconnectListener(h)
	calls = nil
	slot.Fire(&driver.NodeDisconnectNotification{})
	assert.Equal(t, []string{"original:peer0"}, calls)

	hub.Close()
	hub.Close()
	calls = nil
	slot.Fire(&driver.NodeDisconnectNotification{Node: "peer0"})
	assert.Equal(t, []string{"original:peer0"}, calls)
	require.NotNil(t, slot.Get())
	assert.Equal(t, 0, hub.listeners.Len())
}

func TestDisconnectHub_EmptySlot(t *testing.T) {
	slot := NewSlot(nil)
	hub := NewDisconnectHub("peer1", slot)

	var got *driver.NodeDisconnectNotification
	hub.AddDisconnectListener(driver.DisconnectListenerFunc(func(event *driver.NodeDisconnectNotification) {
		got = event
	}))
	slot.Fire(nil)
	require.NotNil(t, got)
	assert.Equal(t, "peer1", got.Node)

	hub.Close()
	assert.Nil(t, slot.Get())
}
