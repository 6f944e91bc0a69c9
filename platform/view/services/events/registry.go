/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
)

type entry[L any] struct {
	handle   driver.ListenerHandle
	listener L
}

// Registry is a thread-safe, ordered set of listeners.
// Listeners are invoked on a snapshot of the registry, therefore a listener
// can add or remove listeners, itself included, while being invoked.
type Registry[L any] struct {
	mutex   sync.RWMutex
	next    driver.ListenerHandle
	entries []entry[L]
	index   map[driver.ListenerHandle]struct{}
}

func NewRegistry[L any]() *Registry[L] {
	return &Registry[L]{
		index: map[driver.ListenerHandle]struct{}{},
	}
}

// Add registers the listener and returns its handle.
// Adding a listener that is already registered returns the existing handle.
func (r *Registry[L]) Add(listener L) driver.ListenerHandle {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if h, ok := r.find(listener); ok {
		return h
	}
	r.next++
	r.entries = append(r.entries, entry[L]{handle: r.next, listener: listener})
	r.index[r.next] = struct{}{}
	return r.next
}

// Remove deregisters the listener bound to the handle. Unknown handles are ignored.
func (r *Registry[L]) Remove(handle driver.ListenerHandle) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.index[handle]; !ok {
		return false
	}
	delete(r.index, handle)
	entries := make([]entry[L], 0, len(r.entries)-1)
	for _, e := range r.entries {
		if e.handle != handle {
			entries = append(entries, e)
		}
	}
	r.entries = entries
	return true
}

// Clear removes all listeners
func (r *Registry[L]) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries = nil
	r.index = map[driver.ListenerHandle]struct{}{}
}

func (r *Registry[L]) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

func (r *Registry[L]) Contains(handle driver.ListenerHandle) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.index[handle]
	return ok
}

// Each invokes fn on the listeners in registration order.
// A listener removed while Each is running is not invoked afterwards.
// Errors and panics raised by fn are passed to onFailure and do not stop the iteration.
func (r *Registry[L]) Each(fn func(L) error, onFailure func(driver.ListenerHandle, error)) {
	for _, e := range r.snapshot() {
		if !r.Contains(e.handle) {
			continue
		}
		if err := invoke(e.listener, fn); err != nil && onFailure != nil {
			onFailure(e.handle, err)
		}
	}
}

func invoke[L any](listener L, fn func(L) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("listener panicked: [%v][%s]", rec, debug.Stack())
		}
	}()
	return fn(listener)
}

func (r *Registry[L]) snapshot() []entry[L] {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	clone := make([]entry[L], len(r.entries))
	copy(clone, r.entries)
	return clone
}

// find looks up a registered listener equal to the passed one.
// Listeners whose dynamic value is not comparable (funcs, or structs holding funcs) never match.
func (r *Registry[L]) find(listener L) (driver.ListenerHandle, bool) {
	v := reflect.ValueOf(&listener).Elem()
	if v.Kind() == reflect.Interface && v.IsNil() {
		return 0, false
	}
	if !v.Comparable() {
		return 0, false
	}
	target := any(listener)
	for _, e := range r.entries {
		if equal(e.listener, target) {
			return e.handle, true
		}
	}
	return 0, false
}

// equal compares a registered listener with target, reporting false when the comparison panics
func equal[L any](registered L, target any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return any(registered) == target
}
