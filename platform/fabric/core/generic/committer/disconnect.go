/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"sync"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/events"
)

// DisconnectHandler is the callback a node connection invokes when it is lost
type DisconnectHandler func(event *driver.NodeDisconnectNotification)

// HandlerSlot is the registration point of the disconnect handler of a node connection.
// A connection has a single handler.
type HandlerSlot interface {
	Get() DisconnectHandler
	Set(handler DisconnectHandler)
}

// Slot is a HandlerSlot guarded by a mutex
type Slot struct {
	mutex   sync.RWMutex
	handler DisconnectHandler
}

func NewSlot(handler DisconnectHandler) *Slot {
	return &Slot{handler: handler}
}

func (s *Slot) Get() DisconnectHandler {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.handler
}

func (s *Slot) Set(handler DisconnectHandler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handler = handler
}

// Fire invokes the installed handler, if any
func (s *Slot) Fire(event *driver.NodeDisconnectNotification) {
	if h := s.Get(); h != nil {
		h(event)
	}
}

// DisconnectHub fans out the disconnections of a node to many listeners.
// It replaces the handler installed in the slot with its own, and forwards
// every disconnection to the replaced handler after notifying its listeners.
type DisconnectHub struct {
	node      driver.NodeID
	slot      HandlerSlot
	previous  DisconnectHandler
	listeners *events.Registry[driver.DisconnectListener]

	closeOnce sync.Once
}

func NewDisconnectHub(node driver.NodeID, slot HandlerSlot) *DisconnectHub {
	h := &DisconnectHub{
		node:      node,
		slot:      slot,
		previous:  slot.Get(),
		listeners: events.NewRegistry[driver.DisconnectListener](),
	}
	slot.Set(h.handle)
	return h
}

func (h *DisconnectHub) Node() driver.NodeID { return h.node }

func (h *DisconnectHub) AddDisconnectListener(listener driver.DisconnectListener) driver.ListenerHandle {
	return h.listeners.Add(listener)
}

func (h *DisconnectHub) RemoveDisconnectListener(handle driver.ListenerHandle) {
	h.listeners.Remove(handle)
}

func (h *DisconnectHub) handle(event *driver.NodeDisconnectNotification) {
	if event == nil {
		event = &driver.NodeDisconnectNotification{}
	}
	if len(event.Node) == 0 {
		event.Node = h.node
	}
	h.listeners.Each(func(l driver.DisconnectListener) error {
		l.OnDisconnect(event)
		return nil
	}, func(handle driver.ListenerHandle, err error) {
		logger.Errorf("disconnect listener [%d] of [%s] failed: %v", handle, h.node, err)
	})
	if h.previous != nil {
		h.previous(event)
	}
}

// Close restores the original handler and removes all listeners
func (h *DisconnectHub) Close() {
	h.closeOnce.Do(func() {
		h.slot.Set(h.previous)
		h.listeners.Clear()
	})
}
