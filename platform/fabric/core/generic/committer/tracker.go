/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils"
	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/utils/collections"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics/disabled"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zapcore"
)

var logger = logging.MustGetLogger()

type TrackerOption func(*Tracker)

func WithMetrics(m *Metrics) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) TrackerOption {
	return func(t *Tracker) {
		t.tracer = tp.Tracer("commit_tracker")
	}
}

// Tracker waits for the commit of a transaction on a set of nodes.
// It feeds the commit strategy with the first event of each node, until a decision is reached.
// A tracker reaches a terminal state exactly once.
type Tracker struct {
	id          string
	txID        driver.TxID
	strategy    CommitStrategy
	blocks      driver.BlockSource
	disconnects map[driver.NodeID]driver.DisconnectSource
	metrics     *Metrics
	tracer      trace.Tracer

	mutex              sync.Mutex
	remaining          collections.Set[driver.NodeID]
	started            bool
	unsubscribed       bool
	blockHandle        driver.ListenerHandle
	disconnectHandles  map[driver.NodeID]driver.ListenerHandle
	subscribedToBlocks bool

	once      sync.Once
	done      chan struct{}
	err       error
	cancelled bool
}

// NewTracker returns a tracker for txID over the given nodes.
// Commits are read from blocks, disconnections from the source of each node, if any.
func NewTracker(
	txID driver.TxID,
	nodes []driver.NodeID,
	strategy CommitStrategy,
	blocks driver.BlockSource,
	disconnects map[driver.NodeID]driver.DisconnectSource,
	opts ...TrackerOption,
) *Tracker {
	t := &Tracker{
		id:                utils.GenerateUUID(),
		txID:              txID,
		strategy:          strategy,
		blocks:            blocks,
		disconnects:       disconnects,
		remaining:         collections.NewSet(nodes...),
		disconnectHandles: map[driver.NodeID]driver.ListenerHandle{},
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(&disabled.Provider{})
	}
	if t.tracer == nil {
		t.tracer = noop.NewTracerProvider().Tracer("commit_tracker")
	}
	return t
}

func (t *Tracker) TxID() driver.TxID { return t.txID }

// Start subscribes to the commit and disconnection events.
// If there are no nodes to wait for, the tracker succeeds at once.
func (t *Tracker) Start() {
	t.mutex.Lock()
	if t.started {
		t.mutex.Unlock()
		return
	}
	t.started = true
	nodes := t.remaining.ToSlice()
	t.mutex.Unlock()

	if len(nodes) == 0 {
		logger.Debugf("[%s] no nodes to wait for on [%s]", t.id, t.txID)
		t.finish(nil, false)
		return
	}

	var blockHandle driver.ListenerHandle
	if t.blocks != nil {
		blockHandle = t.blocks.AddBlockListener(t)
	}
	handles := make(map[driver.NodeID]driver.ListenerHandle, len(nodes))
	for _, node := range nodes {
		if source, ok := t.disconnects[node]; ok && source != nil {
			handles[node] = source.AddDisconnectListener(t)
		}
	}

	t.mutex.Lock()
	if t.unsubscribed {
		// settled while subscribing
		t.mutex.Unlock()
		if t.blocks != nil {
			t.blocks.RemoveBlockListener(blockHandle)
		}
		for node, handle := range handles {
			t.disconnects[node].RemoveDisconnectListener(handle)
		}
		return
	}
	t.blockHandle = blockHandle
	t.subscribedToBlocks = t.blocks != nil
	t.disconnectHandles = handles
	t.mutex.Unlock()
}

// OnBlock looks for the tracked transaction in the block
func (t *Tracker) OnBlock(block *driver.BlockNotification) error {
	for _, tx := range block.Transactions {
		if tx.TxID != t.txID {
			continue
		}
		if !t.claim(tx.Node) {
			if logger.IsEnabledFor(zapcore.DebugLevel) {
				logger.Debugf("[%s] ignore commit of [%s] from [%s]", t.id, logging.Prefix(t.txID), logging.Printable(tx.Node))
			}
			continue
		}
		if !tx.Valid {
			t.finish(&CommitError{TxID: t.txID, Reason: ErrTransactionInvalid, Node: tx.Node, Code: tx.Code}, false)
			return nil
		}
		t.apply(t.strategy.OnEvent(tx))
	}
	return nil
}

// OnDisconnect feeds the strategy with the disconnection of a node that did not respond yet
func (t *Tracker) OnDisconnect(event *driver.NodeDisconnectNotification) {
	if !t.claim(event.Node) {
		return
	}
	logger.Warnf("[%s] node [%s] disconnected while waiting for [%s]: %v", t.id, logging.Printable(event.Node), logging.Prefix(t.txID), event.Cause)
	t.apply(t.strategy.OnError(event))
}

// WaitForResult blocks until a decision is reached, the timeout elapses, or the context is done.
// It returns nil on success or after Cancel, a *CommitError on failure and ErrTimeout on timeout.
// A non-positive timeout waits without a deadline.
func (t *Tracker) WaitForResult(ctx context.Context, timeout time.Duration) error {
	ctx, span := t.tracer.Start(ctx, "wait_for_commit", trace.WithAttributes(attribute.String("tx_id", t.txID)))
	defer span.End()
	defer t.unsubscribe()

	start := time.Now()
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	result := resultSuccess
	select {
	case <-t.done:
	case <-timer:
		t.finish(errors.Wrapf(ErrTimeout, "transaction [%s] after [%s]", t.txID, timeout), false)
	case <-ctx.Done():
		t.finish(ctx.Err(), true)
	}
	<-t.done

	err := t.err
	switch {
	case errors.Is(err, ErrTimeout):
		result = resultTimeout
	case t.cancelled:
		result = resultCancelled
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	case err != nil:
		result = resultFail
	}
	span.AddEvent("decision", trace.WithAttributes(attribute.String("result", result)))
	if err != nil {
		span.RecordError(err)
	}
	t.metrics.Results.With(resultLabel, result).Add(1)
	t.metrics.WaitDuration.Observe(time.Since(start).Seconds())
	if logger.IsEnabledFor(zapcore.DebugLevel) {
		logger.Debugf("[%s] commit of [%s] settled with [%s] in [%s]", t.id, t.txID, result, time.Since(start))
	}
	return err
}

// Cancel releases any waiter with no error. Events received afterwards are ignored.
func (t *Tracker) Cancel() {
	t.finish(nil, true)
}

// Cancelled tells if the tracker was settled by Cancel or by the cancellation of the waiting context
func (t *Tracker) Cancelled() bool {
	select {
	case <-t.done:
		return t.cancelled
	default:
		return false
	}
}

// Done is closed when the tracker reaches its terminal state
func (t *Tracker) Done() <-chan struct{} { return t.done }

// claim removes the node from the remaining ones.
// It returns false if the node is unknown, already responded, or the tracker is settled.
func (t *Tracker) claim(node driver.NodeID) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.remaining.Remove(node)
}

func (t *Tracker) apply(d Decision) {
	switch d {
	case Success:
		t.finish(nil, false)
	case Fail:
		t.finish(&CommitError{TxID: t.txID, Reason: ErrStrategyFailed}, false)
	}
}

func (t *Tracker) finish(err error, cancelled bool) {
	t.once.Do(func() {
		t.err = err
		t.cancelled = cancelled
		close(t.done)
		t.unsubscribe()
	})
}

// unsubscribe removes every subscription. It is safe to call multiple times,
// also from within a listener invocation.
func (t *Tracker) unsubscribe() {
	t.mutex.Lock()
	if t.unsubscribed {
		t.mutex.Unlock()
		return
	}
	t.unsubscribed = true
	subscribedToBlocks, blockHandle := t.subscribedToBlocks, t.blockHandle
	handles := t.disconnectHandles
	t.subscribedToBlocks = false
	t.disconnectHandles = map[driver.NodeID]driver.ListenerHandle{}
	t.mutex.Unlock()

	if subscribedToBlocks {
		t.blocks.RemoveBlockListener(blockHandle)
	}
	for node, handle := range handles {
		t.disconnects[node].RemoveDisconnectListener(handle)
	}
}
