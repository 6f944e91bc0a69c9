/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package query

import (
	"fmt"
	"strings"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"go.uber.org/multierr"
)

var (
	// ErrUnavailable signals that a node could not be reached. The router moves on to the next node.
	ErrUnavailable = errors.New("node unavailable")
	// ErrNoNodes is returned by a router with no nodes
	ErrNoNodes = errors.New("no nodes to query")
)

// RejectedError signals that a node processed the query and rejected it.
// The router does not try other nodes.
type RejectedError struct {
	Node   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("query rejected by [%s]: %s", e.Node, e.Reason)
}

// AggregateError is returned when every node failed
type AggregateError struct {
	err error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0)
	for _, err := range multierr.Errors(e.err) {
		msgs = append(msgs, err.Error())
	}
	return "query failed on all nodes: [" + strings.Join(msgs, "; ") + "]"
}

// Errors returns the failure of each node, in the order the nodes were tried
func (e *AggregateError) Errors() []error { return multierr.Errors(e.err) }

func (e *AggregateError) Unwrap() []error { return e.Errors() }
