/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package query

import (
	"context"
	"strings"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

var logger = logging.MustGetLogger()

//go:generate counterfeiter -o mock/node.go . Node

// Node evaluates read-only queries
type Node interface {
	Name() string
	// Query returns a *RejectedError if the node rejects the request.
	// Any other error makes the router fail over to the next node.
	Query(ctx context.Context, request []byte) ([]byte, error)
}

type Policy int

const (
	// Sticky starts from the last node that answered and moves on only on failure
	Sticky Policy = iota
	// RoundRobin starts each call from the node after the one the previous call started from
	RoundRobin
)

func (p Policy) String() string {
	switch p {
	case Sticky:
		return "sticky"
	case RoundRobin:
		return "roundrobin"
	default:
		return "unknown"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "") {
	case "sticky":
		return Sticky, nil
	case "roundrobin":
		return RoundRobin, nil
	default:
		return 0, errors.Errorf("unknown query policy [%s]", s)
	}
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type Option func(*Router)

// WithTimeout bounds the time given to each node
func WithTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		r.timeout = timeout
	}
}

// Router evaluates queries on a fixed list of nodes, failing over on unavailable nodes
type Router struct {
	policy  Policy
	nodes   []Node
	timeout time.Duration
	index   atomic.Uint64
}

func NewRouter(policy Policy, nodes []Node, opts ...Option) *Router {
	r := &Router{policy: policy, nodes: nodes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate sends the request to the nodes, one at a time, starting from the node chosen by the policy.
// Only unavailable nodes, those failing with ErrUnavailable or not answering within the timeout,
// make it move on to the next node. It returns the first answer, the first other error,
// or an *AggregateError if no node is available.
func (r *Router) Evaluate(ctx context.Context, request []byte) ([]byte, error) {
	n := len(r.nodes)
	if n == 0 {
		return nil, ErrNoNodes
	}

	start := r.start()
	var failures error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := (start + i) % n
		node := r.nodes[idx]

		res, err := r.query(ctx, node, request)
		if err == nil {
			if r.policy == Sticky {
				r.index.Store(uint64(idx))
			}
			return res, nil
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, errors.WithMessagef(err, "query failed on [%s]", node.Name())
		}
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("node [%s] failed, trying the next one: %v", node.Name(), err)
		}
		failures = multierr.Append(failures, errors.WithMessagef(err, "[%s]", node.Name()))
	}
	return nil, &AggregateError{err: failures}
}

func (r *Router) start() int {
	n := uint64(len(r.nodes))
	if r.policy == RoundRobin {
		return int((r.index.Inc() - 1) % n)
	}
	return int(r.index.Load() % n)
}

func (r *Router) query(parent context.Context, node Node, request []byte) ([]byte, error) {
	ctx := parent
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	res, err := node.Query(ctx, request)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		// the node did not answer in time, the next one may
		return nil, errors.Wrapf(ErrUnavailable, "[%s] did not answer within [%s]: %v", node.Name(), r.timeout, err)
	}
	return res, err
}
