/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/events"
	mprom "github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records the numbers of the delivered blocks
type collector struct {
	mu      sync.Mutex
	numbers []driver.BlockNum
}

func (c *collector) OnBlock(block *driver.BlockNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numbers = append(c.numbers, block.Number)
	return nil
}

func (c *collector) Numbers() []driver.BlockNum {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]driver.BlockNum, len(c.numbers))
	copy(res, c.numbers)
	return res
}

// fakeUpstream is an upstream source driven by the test
type fakeUpstream struct {
	listeners *events.Registry[driver.BlockListener]
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{listeners: events.NewRegistry[driver.BlockListener]()}
}

func (u *fakeUpstream) AddBlockListener(l driver.BlockListener) driver.ListenerHandle {
	return u.listeners.Add(l)
}

func (u *fakeUpstream) RemoveBlockListener(h driver.ListenerHandle) { u.listeners.Remove(h) }

func (u *fakeUpstream) Send(numbers ...driver.BlockNum) {
	for _, n := range numbers {
		block := &driver.BlockNotification{Number: n}
		u.listeners.Each(func(l driver.BlockListener) error { return l.OnBlock(block) }, nil)
	}
}

func blocks(numbers ...driver.BlockNum) []*driver.BlockNotification {
	res := make([]*driver.BlockNotification, len(numbers))
	for i, n := range numbers {
		res[i] = &driver.BlockNotification{Number: n}
	}
	return res
}

func feed(t *testing.T, s *OrderedBlockSource, numbers ...driver.BlockNum) {
	t.Helper()
	for _, b := range blocks(numbers...) {
		require.NoError(t, s.OnBlock(b))
	}
}

func TestOrderedBlockSource_OutOfOrder(t *testing.T) {
	upstream := newFakeUpstream()
	s := NewOrderedBlockSource(upstream, WithStartPosition(1))
	c := &collector{}
	s.AddBlockListener(c)

	upstream.Send(2)
	assert.Empty(t, c.Numbers())
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, int64(0), s.LastDelivered())

	upstream.Send(1)
	assert.Equal(t, []driver.BlockNum{1, 2}, c.Numbers())
	assert.Equal(t, 0, s.Pending())

	upstream.Send(3)
	assert.Equal(t, []driver.BlockNum{1, 2, 3}, c.Numbers())
	assert.Equal(t, int64(3), s.LastDelivered())
}

func TestOrderedBlockSource_FirstArrivalStartsSequence(t *testing.T) {
	s := NewOrderedBlockSource(nil)
	c := &collector{}
	s.AddBlockListener(c)
	assert.Equal(t, Unset, s.LastDelivered())

	// without a start position the first arrival starts the sequence
	feed(t, s, 5, 7, 4, 6)
	assert.Equal(t, []driver.BlockNum{5, 6, 7}, c.Numbers())
}

func TestOrderedBlockSource_DropsStaleAndDuplicates(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewOrderedBlockSource(nil, WithMetrics(mprom.NewProvider(registry)))
	c := &collector{}
	s.AddBlockListener(c)

	feed(t, s, 10, 12, 12, 11, 10, 9, 11, 13)
	assert.Equal(t, []driver.BlockNum{10, 11, 12, 13}, c.Numbers())

	mfs, err := registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "fsc_delivery_delivered_blocks":
			values["delivered"] = mf.GetMetric()[0].GetCounter().GetValue()
		case "fsc_delivery_dropped_blocks":
			for _, m := range mf.GetMetric() {
				values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"delivered": 4, reasonDuplicate: 1, reasonStale: 3}, values)
}

func TestOrderedBlockSource_PermutationsWithDuplicates(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		const n = 40
		var input []driver.BlockNum
		for i := driver.BlockNum(0); i < n; i++ {
			input = append(input, i)
			for d := r.Intn(3); d > 0; d-- {
				input = append(input, i)
			}
		}
		r.Shuffle(len(input), func(i, j int) { input[i], input[j] = input[j], input[i] })

		s := NewOrderedBlockSource(nil, WithStartPosition(0))
		c := &collector{}
		s.AddBlockListener(c)
		feed(t, s, input...)

		got := c.Numbers()
		require.Len(t, got, n, "round %d", round)
		for i, num := range got {
			require.Equal(t, driver.BlockNum(i), num, "round %d", round)
		}

		// nothing at or below the last delivered number is delivered again
		feed(t, s, 0, n/2, n-1)
		require.Len(t, c.Numbers(), n)
	}
}

func TestOrderedBlockSource_StartPosition(t *testing.T) {
	s := NewOrderedBlockSource(nil, WithStartPosition(3))
	c := &collector{}
	s.AddBlockListener(c)

	feed(t, s, 1, 2, 4)
	assert.Empty(t, c.Numbers())
	assert.Equal(t, 1, s.Pending())

	feed(t, s, 3)
	assert.Equal(t, []driver.BlockNum{3, 4}, c.Numbers())
}

// eagerUpstream delivers a block to each subscriber as soon as it subscribes
type eagerUpstream struct {
	*fakeUpstream
	first driver.BlockNum
}

func (u *eagerUpstream) AddBlockListener(l driver.BlockListener) driver.ListenerHandle {
	h := u.fakeUpstream.AddBlockListener(l)
	_ = l.OnBlock(&driver.BlockNotification{Number: u.first})
	return h
}

func TestOrderedBlockSource_WithListener(t *testing.T) {
	up := &eagerUpstream{fakeUpstream: newFakeUpstream(), first: 3}
	c := &collector{}
	s := NewOrderedBlockSource(up, WithStartPosition(3), WithListener(c))
	defer s.Close()
	assert.Equal(t, []driver.BlockNum{3}, c.Numbers())

	up.Send(3, 4)
	assert.Equal(t, []driver.BlockNum{3, 4}, c.Numbers())
}

func TestOrderedBlockSource_ListenerFailureIsIsolated(t *testing.T) {
	l, recorder := logging.NewTestLogger(t)
	s := NewOrderedBlockSource(nil, WithLogger(l))
	c := &collector{}
	s.AddBlockListener(driver.BlockListenerFunc(func(*driver.BlockNotification) error {
		return errors.New("failing listener")
	}))
	s.AddBlockListener(driver.BlockListenerFunc(func(*driver.BlockNotification) error {
		panic("panicking listener")
	}))
	s.AddBlockListener(c)

	feed(t, s, 1, 2)
	assert.Equal(t, []driver.BlockNum{1, 2}, c.Numbers())
	assert.Equal(t, int64(2), s.LastDelivered())
	assert.Len(t, recorder.MessagesContaining("failed on block"), 4)
}

func TestOrderedBlockSource_IdempotentListener(t *testing.T) {
	s := NewOrderedBlockSource(nil)
	c := &collector{}
	h1 := s.AddBlockListener(c)
	h2 := s.AddBlockListener(c)
	assert.Equal(t, h1, h2)

	feed(t, s, 1)
	assert.Equal(t, []driver.BlockNum{1}, c.Numbers())

	s.RemoveBlockListener(h1)
	feed(t, s, 2)
	assert.Equal(t, []driver.BlockNum{1}, c.Numbers())
}

func TestOrderedBlockSource_RemoveFromCallback(t *testing.T) {
	s := NewOrderedBlockSource(nil)
	c := &collector{}
	var once driver.ListenerHandle
	var onceCalls int
	once = s.AddBlockListener(driver.BlockListenerFunc(func(*driver.BlockNotification) error {
		onceCalls++
		s.RemoveBlockListener(once)
		return nil
	}))
	s.AddBlockListener(c)

	feed(t, s, 1, 2, 3)
	assert.Equal(t, 1, onceCalls)
	assert.Equal(t, []driver.BlockNum{1, 2, 3}, c.Numbers())
}

func TestOrderedBlockSource_ReentrantDelivery(t *testing.T) {
	s := NewOrderedBlockSource(nil)
	c := &collector{}
	s.AddBlockListener(driver.BlockListenerFunc(func(block *driver.BlockNotification) error {
		if block.Number == 1 {
			// a listener feeding the source must not deadlock
			return s.OnBlock(&driver.BlockNotification{Number: 2})
		}
		return nil
	}))
	s.AddBlockListener(c)

	feed(t, s, 1)
	assert.Equal(t, []driver.BlockNum{1, 2}, c.Numbers())
}

func TestOrderedBlockSource_ConcurrentUpstreams(t *testing.T) {
	s := NewOrderedBlockSource(nil, WithStartPosition(0))
	c := &collector{}
	s.AddBlockListener(c)

	const n = 500
	const nodes = 4
	var wg sync.WaitGroup
	for node := 0; node < nodes; node++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			perm := r.Perm(n)
			for _, i := range perm {
				_ = s.OnBlock(&driver.BlockNotification{Number: driver.BlockNum(i)})
			}
		}(int64(node))
	}
	wg.Wait()

	got := c.Numbers()
	require.Len(t, got, n)
	for i, num := range got {
		require.Equal(t, driver.BlockNum(i), num)
	}
}

func TestOrderedBlockSource_Close(t *testing.T) {
	upstream := newFakeUpstream()
	s := NewOrderedBlockSource(upstream)
	c := &collector{}
	s.AddBlockListener(c)
	assert.Equal(t, 1, upstream.listeners.Len())

	upstream.Send(1, 3)
	s.Close()
	s.Close()

	assert.Equal(t, 0, upstream.listeners.Len())
	assert.Equal(t, 0, s.Pending())
	require.NoError(t, s.OnBlock(&driver.BlockNotification{Number: 2}))
	assert.Equal(t, []driver.BlockNum{1}, c.Numbers())
}
