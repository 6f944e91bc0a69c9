/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	name string

	mutex  sync.Mutex
	err    error
	calls  int
	answer []byte
}

func (n *fakeNode) Name() string { return n.name }

func (n *fakeNode) Query(ctx context.Context, _ []byte) ([]byte, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	if n.answer != nil {
		return n.answer, nil
	}
	return []byte(n.name), nil
}

func (n *fakeNode) fail(err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.err = err
}

func (n *fakeNode) Calls() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.calls
}

func nodes(names ...string) ([]Node, []*fakeNode) {
	res := make([]Node, len(names))
	fakes := make([]*fakeNode, len(names))
	for i, name := range names {
		fakes[i] = &fakeNode{name: name}
		res[i] = fakes[i]
	}
	return res, fakes
}

func evaluate(t *testing.T, r *Router) string {
	t.Helper()
	res, err := r.Evaluate(context.Background(), []byte("query"))
	require.NoError(t, err)
	return string(res)
}

func TestRouter_Sticky(t *testing.T) {
	all, fakes := nodes("peer0", "peer1", "peer2")
	r := NewRouter(Sticky, all)

	assert.Equal(t, "peer0", evaluate(t, r))
	assert.Equal(t, "peer0", evaluate(t, r))

	fakes[0].fail(errors.Wrap(ErrUnavailable, "connection refused"))
	assert.Equal(t, "peer1", evaluate(t, r))

	// the router keeps using the node that answered
	fakes[0].fail(nil)
	assert.Equal(t, "peer1", evaluate(t, r))
	assert.Equal(t, 3, fakes[0].Calls())
}

func TestRouter_RoundRobin(t *testing.T) {
	all, fakes := nodes("peer0", "peer1", "peer2")
	r := NewRouter(RoundRobin, all)

	assert.Equal(t, "peer0", evaluate(t, r))
	assert.Equal(t, "peer1", evaluate(t, r))
	assert.Equal(t, "peer2", evaluate(t, r))
	assert.Equal(t, "peer0", evaluate(t, r))

	// the start index advances regardless of the outcome
	fakes[1].fail(ErrUnavailable)
	assert.Equal(t, "peer2", evaluate(t, r))
	assert.Equal(t, "peer2", evaluate(t, r))
	assert.Equal(t, "peer0", evaluate(t, r))
}

func TestRouter_RejectionShortCircuits(t *testing.T) {
	all, fakes := nodes("peer0", "peer1")
	r := NewRouter(Sticky, all)
	fakes[0].fail(&RejectedError{Node: "peer0", Reason: "chaincode error"})

	_, err := r.Evaluate(context.Background(), []byte("query"))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "peer0", rejected.Node)
	assert.Equal(t, 0, fakes[1].Calls())
}

func TestRouter_OtherErrorsDoNotFailOver(t *testing.T) {
	all, fakes := nodes("peer0", "peer1")
	r := NewRouter(Sticky, all)
	fakes[0].fail(errors.New("malformed response"))

	_, err := r.Evaluate(context.Background(), []byte("query"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response")
	assert.NotErrorIs(t, err, ErrUnavailable)
	var agg *AggregateError
	assert.False(t, errors.As(err, &agg))
	assert.Equal(t, 0, fakes[1].Calls())
}

func TestRouter_AllUnavailable(t *testing.T) {
	all, fakes := nodes("peer0", "peer1", "peer2")
	r := NewRouter(RoundRobin, all)
	for _, f := range fakes {
		f.fail(errors.Wrapf(ErrUnavailable, "%s down", f.name))
	}

	_, err := r.Evaluate(context.Background(), []byte("query"))
	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	require.Len(t, agg.Errors(), 3)
	assert.ErrorIs(t, err, ErrUnavailable)
	for _, f := range fakes {
		assert.Contains(t, err.Error(), f.name+" down")
		assert.Equal(t, 1, f.Calls())
	}
}

func TestRouter_NoNodes(t *testing.T) {
	_, err := NewRouter(Sticky, nil).Evaluate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoNodes)
}

type slowNode struct{ fakeNode }

func (n *slowNode) Query(ctx context.Context, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, errors.Wrap(ErrUnavailable, ctx.Err().Error())
}

func TestRouter_Timeout(t *testing.T) {
	slow := &slowNode{fakeNode{name: "slow"}}
	fast := &fakeNode{name: "fast"}
	r := NewRouter(Sticky, []Node{slow, fast}, WithTimeout(10*time.Millisecond))
	assert.Equal(t, "fast", evaluate(t, r))
}

// silentNode never answers and reports the bare context error
type silentNode struct{ fakeNode }

func (n *silentNode) Query(ctx context.Context, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRouter_TimeoutCountsAsUnavailable(t *testing.T) {
	silent := &silentNode{fakeNode{name: "silent"}}
	fast := &fakeNode{name: "fast"}
	r := NewRouter(Sticky, []Node{silent, fast}, WithTimeout(10*time.Millisecond))
	assert.Equal(t, "fast", evaluate(t, r))
}

func TestRouter_CallerCancellationStops(t *testing.T) {
	silent := &silentNode{fakeNode{name: "silent"}}
	fast := &fakeNode{name: "fast"}
	r := NewRouter(Sticky, []Node{silent, fast})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Evaluate(ctx, []byte("query"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, fast.Calls())
}

func TestParsePolicy(t *testing.T) {
	for input, expected := range map[string]Policy{
		"sticky":      Sticky,
		"Sticky":      Sticky,
		"roundrobin":  RoundRobin,
		"round-robin": RoundRobin,
	} {
		p, err := ParsePolicy(input)
		require.NoError(t, err)
		assert.Equal(t, expected, p)
	}
	_, err := ParsePolicy("random")
	assert.Error(t, err)
}
