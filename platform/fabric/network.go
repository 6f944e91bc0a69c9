/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabric

import (
	"context"
	"sync"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/committer"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/delivery"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/query"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics/disabled"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var logger = logging.MustGetLogger()

type Option func(*Network)

// WithDisconnectSources sets the sources of the disconnections of the nodes
func WithDisconnectSources(sources ...driver.DisconnectSource) Option {
	return func(n *Network) {
		for _, s := range sources {
			n.disconnects[s.Node()] = s
		}
	}
}

// WithQueryNodes sets the nodes used by Evaluate, in order of preference
func WithQueryNodes(nodes ...query.Node) Option {
	return func(n *Network) {
		n.queryNodes = nodes
	}
}

func WithMetricsProvider(p metrics.Provider) Option {
	return func(n *Network) {
		n.metricsProvider = p
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(n *Network) {
		n.tracerProvider = tp
	}
}

// Network is the entry point to the events of a ledger network.
// Block listeners receive the blocks in order, without gaps nor duplicates,
// whatever the order the nodes deliver them.
type Network struct {
	config          *Config
	upstream        driver.BlockSource
	disconnects     map[driver.NodeID]driver.DisconnectSource
	queryNodes      []query.Node
	metricsProvider metrics.Provider
	tracerProvider  trace.TracerProvider

	ordered       *delivery.OrderedBlockSource
	router        *query.Router
	commitMetrics *committer.Metrics

	mutex        sync.Mutex
	nextHandle   driver.ListenerHandle
	checkpointed map[driver.ListenerHandle]*delivery.OrderedBlockSource
	closed       bool
}

// NewNetwork returns a network fed by upstream, the unordered blocks received from all the nodes.
// The block listeners receive the sequence that starts at the first block upstream delivers;
// use the checkpointed listeners to start from a given block.
func NewNetwork(config *Config, upstream driver.BlockSource, opts ...Option) *Network {
	n := &Network{
		config:          config,
		upstream:        upstream,
		disconnects:     map[driver.NodeID]driver.DisconnectSource{},
		metricsProvider: &disabled.Provider{},
		tracerProvider:  noop.NewTracerProvider(),
		checkpointed:    map[driver.ListenerHandle]*delivery.OrderedBlockSource{},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.ordered = delivery.NewOrderedBlockSource(upstream, delivery.WithMetrics(n.metricsProvider))
	n.router = query.NewRouter(config.Query.Policy, n.queryNodes, query.WithTimeout(config.Query.Timeout))
	n.commitMetrics = committer.NewMetrics(n.metricsProvider)
	return n
}

func (n *Network) AddBlockListener(listener driver.BlockListener) driver.ListenerHandle {
	return n.ordered.AddBlockListener(listener)
}

func (n *Network) RemoveBlockListener(handle driver.ListenerHandle) {
	n.ordered.RemoveBlockListener(handle)
}

// OpenCheckpoint opens the checkpoint store described by the configuration
func (n *Network) OpenCheckpoint() (checkpoint.Store, error) {
	return checkpoint.Open(n.config.Checkpoint.Store())
}

// AddCheckpointedBlockListener delivers the blocks to the callback starting from the position of the store,
// and advances the store after each block
func (n *Network) AddCheckpointedBlockListener(store checkpoint.Store, callback checkpoint.BlockCallback) (driver.ListenerHandle, error) {
	return n.addCheckpointed(store, checkpoint.NewBlockListener(store, callback))
}

// AddCheckpointedTransactionListener delivers the transactions to the callback starting from the position of the store,
// recording each transaction in the store
func (n *Network) AddCheckpointedTransactionListener(store checkpoint.Store, callback checkpoint.TransactionCallback) (driver.ListenerHandle, error) {
	return n.addCheckpointed(store, checkpoint.NewTransactionListener(store, callback))
}

// RemoveCheckpointedListener stops the delivery to a checkpointed listener. The store is left open.
func (n *Network) RemoveCheckpointedListener(handle driver.ListenerHandle) {
	n.mutex.Lock()
	source, ok := n.checkpointed[handle]
	delete(n.checkpointed, handle)
	n.mutex.Unlock()
	if ok {
		source.Close()
	}
}

func (n *Network) addCheckpointed(store checkpoint.Store, listener driver.BlockListener) (driver.ListenerHandle, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.closed {
		return 0, errors.New("network closed")
	}

	// the delivery metrics track the shared source only
	var opts []delivery.Option
	if start, ok := checkpoint.StartPosition(store); ok {
		logger.Debugf("resume checkpointed listener from block [%d]", start)
		opts = append(opts, delivery.WithStartPosition(start))
	}
	source := delivery.NewOrderedBlockSource(n.upstream, append(opts, delivery.WithListener(listener))...)

	n.nextHandle++
	n.checkpointed[n.nextHandle] = source
	return n.nextHandle, nil
}

// CommitTracker returns a started tracker of the commit of txID on the given nodes,
// driven by the configured strategy
func (n *Network) CommitTracker(txID driver.TxID, nodes []driver.NodeID) *committer.Tracker {
	t := committer.NewTracker(
		txID,
		nodes,
		n.config.Commit.Strategy.New(nodes),
		n.upstream,
		n.disconnects,
		committer.WithMetrics(n.commitMetrics),
		committer.WithTracerProvider(n.tracerProvider),
	)
	t.Start()
	return t
}

// WaitForCommit waits, up to the configured timeout, for the commit of txID on the given nodes.
// Commits notified before the call are missed; use CommitTracker before submitting to avoid that.
func (n *Network) WaitForCommit(ctx context.Context, txID driver.TxID, nodes []driver.NodeID) error {
	return n.CommitTracker(txID, nodes).WaitForResult(ctx, n.config.Commit.Timeout)
}

// Evaluate sends a read-only query to the query nodes according to the configured policy
func (n *Network) Evaluate(ctx context.Context, request []byte) ([]byte, error) {
	return n.router.Evaluate(ctx, request)
}

// Close detaches every listener from the upstream source
func (n *Network) Close() {
	n.mutex.Lock()
	if n.closed {
		n.mutex.Unlock()
		return
	}
	n.closed = true
	sources := n.checkpointed
	n.checkpointed = map[driver.ListenerHandle]*delivery.OrderedBlockSource{}
	n.mutex.Unlock()

	if len(sources) > 0 {
		logger.Debugf("close checkpointed listeners [%s]", logging.Keys(sources))
	}
	for _, source := range sources {
		source.Close()
	}
	n.ordered.Close()
}
