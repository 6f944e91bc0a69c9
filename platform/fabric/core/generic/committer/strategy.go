/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"strings"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"go.uber.org/atomic"
)

// Decision is the outcome of a strategy step
type Decision int

const (
	Continue Decision = iota
	Success
	Fail
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// CommitStrategy decides when the commit of a transaction observed on a set of nodes is settled.
// Each node contributes at most one event. Both methods can be called concurrently.
type CommitStrategy interface {
	// OnEvent is called when a node reports the transaction as committed
	OnEvent(event *driver.TransactionNotification) Decision
	// OnError is called when a node disconnects before reporting the commit
	OnError(event *driver.NodeDisconnectNotification) Decision
}

type StrategyType int

const (
	// AllNodes waits for every node to respond and succeeds if at least one committed
	AllNodes StrategyType = iota
	// AnyNode succeeds on the first commit and fails when every node disconnected
	AnyNode
)

var strategyNames = map[StrategyType]string{
	AllNodes: "all",
	AnyNode:  "any",
}

func (t StrategyType) String() string {
	if name, ok := strategyNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategyType parses the configuration name of a strategy, either "all" or "any"
func ParseStrategyType(s string) (StrategyType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range strategyNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown commit strategy [%s]", s)
}

func (t *StrategyType) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// New returns a fresh strategy of this type over the given nodes
func (t StrategyType) New(nodes []driver.NodeID) CommitStrategy {
	switch t {
	case AnyNode:
		return NewAnyStrategy(nodes)
	default:
		return NewAllStrategy(nodes)
	}
}

// AllStrategy succeeds once all nodes responded and at least one of them committed
type AllStrategy struct {
	size      int32
	successes atomic.Int32
	responses atomic.Int32
}

func NewAllStrategy(nodes []driver.NodeID) *AllStrategy {
	return &AllStrategy{size: int32(len(nodes))}
}

func (s *AllStrategy) OnEvent(event *driver.TransactionNotification) Decision {
	if event.Valid {
		s.successes.Inc()
	}
	return s.decide(s.responses.Inc())
}

func (s *AllStrategy) OnError(*driver.NodeDisconnectNotification) Decision {
	return s.decide(s.responses.Inc())
}

// decide is invoked with the response count that includes the current event.
// Only the last response produces a terminal decision.
func (s *AllStrategy) decide(responses int32) Decision {
	if responses != s.size {
		return Continue
	}
	if s.successes.Load() > 0 {
		return Success
	}
	return Fail
}

// AnyStrategy succeeds on the first commit
type AnyStrategy struct {
	size          int32
	committed     atomic.Bool
	disconnection atomic.Int32
}

func NewAnyStrategy(nodes []driver.NodeID) *AnyStrategy {
	return &AnyStrategy{size: int32(len(nodes))}
}

func (s *AnyStrategy) OnEvent(event *driver.TransactionNotification) Decision {
	if !event.Valid {
		return Continue
	}
	s.committed.Store(true)
	return Success
}

func (s *AnyStrategy) OnError(*driver.NodeDisconnectNotification) Decision {
	if s.disconnection.Inc() == s.size && !s.committed.Load() {
		return Fail
	}
	return Continue
}
