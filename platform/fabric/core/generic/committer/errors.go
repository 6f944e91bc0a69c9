/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"fmt"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
)

var (
	// ErrTransactionInvalid is the reason of a CommitError raised because a node committed the transaction as invalid
	ErrTransactionInvalid = errors.New("transaction committed as invalid")
	// ErrStrategyFailed is the reason of a CommitError raised because the commit strategy failed
	ErrStrategyFailed = errors.New("commit strategy failed")
	// ErrTimeout is returned when no decision is reached in time
	ErrTimeout = errors.New("timeout waiting for commit")
)

// CommitError signals that the commit of a transaction failed
type CommitError struct {
	TxID driver.TxID
	// Reason is either ErrTransactionInvalid or ErrStrategyFailed
	Reason error
	// Node and Code identify the invalid commit, if any
	Node driver.NodeID
	Code int32
}

func (e *CommitError) Error() string {
	if e.Reason == ErrTransactionInvalid {
		return fmt.Sprintf("commit of [%s] failed: node [%s] reported code [%d]: %v", e.TxID, e.Node, e.Code, e.Reason)
	}
	return fmt.Sprintf("commit of [%s] failed: %v", e.TxID, e.Reason)
}

func (e *CommitError) Unwrap() error { return e.Reason }
