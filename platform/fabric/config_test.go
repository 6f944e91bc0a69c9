/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabric

import (
	"strings"
	"testing"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/committer"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/query"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provider(t *testing.T, yaml string) *config.Provider {
	t.Helper()
	p, err := config.NewProviderFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	return p
}

func TestNewConfig_Defaults(t *testing.T) {
	c, err := NewConfig(provider(t, "logging:\n  spec: info\n"))
	require.NoError(t, err)
	assert.Equal(t, committer.AllNodes, c.Commit.Strategy)
	assert.Equal(t, DefaultCommitTimeout, c.Commit.Timeout)
	assert.Equal(t, checkpoint.MemoryPersistence, c.Checkpoint.Persistence.Type)
	assert.Equal(t, query.Sticky, c.Query.Policy)
	assert.Equal(t, DefaultQueryTimeout, c.Query.Timeout)
}

func TestNewConfig(t *testing.T) {
	c, err := NewConfig(provider(t, `
events:
  commit:
    strategy: Any
    timeout: 5s
  checkpoint:
    persistence:
      type: bolt
      opts:
        path: /tmp/cp.db
        lockTimeout: 1s
  query:
    policy: round-robin
`))
	require.NoError(t, err)
	assert.Equal(t, committer.AnyNode, c.Commit.Strategy)
	assert.Equal(t, 5*time.Second, c.Commit.Timeout)
	assert.Equal(t, query.RoundRobin, c.Query.Policy)
	assert.Equal(t, DefaultQueryTimeout, c.Query.Timeout)
	assert.Equal(t, checkpoint.Config{
		Type:        checkpoint.BoltPersistence,
		Path:        "/tmp/cp.db",
		LockTimeout: time.Second,
	}, c.Checkpoint.Store())
}

func TestNewConfig_Invalid(t *testing.T) {
	_, err := NewConfig(provider(t, "events:\n  commit:\n    strategy: majority\n"))
	assert.Error(t, err)

	_, err = NewConfig(provider(t, "events:\n  query:\n    timeout: -1s\n"))
	assert.Error(t, err)
}
