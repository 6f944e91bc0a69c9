/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"sync"

	"github.com/google/btree"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/events"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics/disabled"
	"go.uber.org/zap/zapcore"
)

var logger = logging.MustGetLogger()

// Unset is the value of the last delivered block number before the first delivery
const Unset int64 = -1

const btreeDegree = 8

type Option func(*OrderedBlockSource)

// WithStartPosition makes the source deliver blocks starting from the given number.
// Blocks below it are dropped as already delivered.
func WithStartPosition(number driver.BlockNum) Option {
	return func(s *OrderedBlockSource) {
		s.lastDelivered = int64(number) - 1
		s.anchored = true
	}
}

// WithListener registers a listener before the source subscribes to upstream,
// so that blocks an upstream delivers on subscription are not missed
func WithListener(listener driver.BlockListener) Option {
	return func(s *OrderedBlockSource) {
		s.listeners.Add(listener)
	}
}

func WithMetrics(provider metrics.Provider) Option {
	return func(s *OrderedBlockSource) {
		s.metrics = NewMetrics(provider)
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *OrderedBlockSource) {
		s.logger = l
	}
}

// OrderedBlockSource turns a stream of blocks that can be out of order and
// contain duplicates into a gap-free, duplicate-free, increasing stream.
// Blocks that arrive ahead of a missing predecessor are kept until the gap is filled.
// There is no bound on the number of kept blocks.
type OrderedBlockSource struct {
	logger    logging.Logger
	metrics   *Metrics
	listeners *events.Registry[driver.BlockListener]

	upstream       driver.BlockSource
	upstreamHandle driver.ListenerHandle

	mutex         sync.Mutex
	pending       *btree.BTreeG[*driver.BlockNotification]
	lastDelivered int64

	// anchored is false until the first delivery, or a start position, fixes the sequence
	anchored bool
	draining bool
	closed   bool
}

// NewOrderedBlockSource returns a source fed by upstream. If upstream is nil,
// blocks must be pushed with OnBlock.
func NewOrderedBlockSource(upstream driver.BlockSource, opts ...Option) *OrderedBlockSource {
	s := &OrderedBlockSource{
		logger:        logger,
		listeners:     events.NewRegistry[driver.BlockListener](),
		upstream:      upstream,
		lastDelivered: Unset,
		pending: btree.NewG[*driver.BlockNotification](btreeDegree, func(a, b *driver.BlockNotification) bool {
			return a.Number < b.Number
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(&disabled.Provider{})
	}
	if upstream != nil {
		s.upstreamHandle = upstream.AddBlockListener(s)
	}
	return s
}

// AddBlockListener registers a listener. Registering the same listener twice has no effect.
func (s *OrderedBlockSource) AddBlockListener(listener driver.BlockListener) driver.ListenerHandle {
	return s.listeners.Add(listener)
}

// RemoveBlockListener deregisters a listener. It can be called from within a listener.
func (s *OrderedBlockSource) RemoveBlockListener(handle driver.ListenerHandle) {
	s.listeners.Remove(handle)
}

// LastDelivered returns the number of the last delivered block, the predecessor
// of the start position if nothing was delivered yet, or Unset
func (s *OrderedBlockSource) LastDelivered() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastDelivered
}

// Pending returns the number of blocks waiting for a missing predecessor
func (s *OrderedBlockSource) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pending.Len()
}

// Close detaches the source from upstream and removes all listeners
func (s *OrderedBlockSource) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	s.pending.Clear(false)
	s.mutex.Unlock()

	if s.upstream != nil {
		s.upstream.RemoveBlockListener(s.upstreamHandle)
	}
	s.listeners.Clear()
	s.metrics.Pending.Set(0)
}

// OnBlock receives a block from upstream.
// Stale and duplicate blocks are dropped silently.
func (s *OrderedBlockSource) OnBlock(block *driver.BlockNotification) error {
	if block == nil {
		return nil
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	if !s.accept(block) {
		s.mutex.Unlock()
		return nil
	}
	if s.draining {
		// the goroutine currently draining will deliver it
		s.mutex.Unlock()
		return nil
	}
	s.draining = true
	s.mutex.Unlock()

	s.drain()
	return nil
}

// accept stores the block in the pending set. It must be called holding the mutex.
func (s *OrderedBlockSource) accept(block *driver.BlockNotification) bool {
	if s.anchored && int64(block.Number) <= s.lastDelivered {
		if s.logger.IsEnabledFor(zapcore.DebugLevel) {
			s.logger.Debugf("drop stale block [%d], last delivered [%d]", block.Number, s.lastDelivered)
		}
		s.metrics.Dropped.With(reasonLabel, reasonStale).Add(1)
		return false
	}
	if s.pending.Has(block) {
		if s.logger.IsEnabledFor(zapcore.DebugLevel) {
			s.logger.Debugf("drop duplicate block [%d], already pending", block.Number)
		}
		s.metrics.Dropped.With(reasonLabel, reasonDuplicate).Add(1)
		return false
	}
	s.pending.ReplaceOrInsert(block)
	s.metrics.Pending.Set(float64(s.pending.Len()))
	return true
}

// drain delivers the pending blocks that follow the last delivered one.
// Only one goroutine drains at a time; the listeners are invoked without holding the mutex.
func (s *OrderedBlockSource) drain() {
	for {
		block, ok := s.next()
		if !ok {
			return
		}
		s.deliver(block)
	}
}

// next pops the next deliverable block, or clears the draining flag if there is none
func (s *OrderedBlockSource) next() (*driver.BlockNotification, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		s.draining = false
		return nil, false
	}
	lowest, ok := s.pending.Min()
	if !ok || (s.anchored && int64(lowest.Number) != s.lastDelivered+1) {
		s.draining = false
		return nil, false
	}
	s.pending.DeleteMin()
	s.lastDelivered = int64(lowest.Number)
	s.anchored = true
	s.metrics.Pending.Set(float64(s.pending.Len()))
	return lowest, true
}

func (s *OrderedBlockSource) deliver(block *driver.BlockNotification) {
	if s.logger.IsEnabledFor(zapcore.DebugLevel) {
		s.logger.Debugf("deliver block [%d] to [%d] listeners", block.Number, s.listeners.Len())
	}
	s.metrics.Delivered.Add(1)
	s.listeners.Each(func(l driver.BlockListener) error {
		return l.OnBlock(block)
	}, func(handle driver.ListenerHandle, err error) {
		s.metrics.ListenerFailures.Add(1)
		s.logger.Errorf("listener [%d] failed on block [%d]: %v", handle, block.Number, err)
	})
}
