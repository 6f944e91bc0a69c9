/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabric

import (
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/committer"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/query"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/config"
)

const (
	DefaultCommitTimeout = 30 * time.Second
	DefaultQueryTimeout  = 10 * time.Second
)

// EventsKey is the root of the configuration of the network events
var EventsKey = config.Join("events")

type Config struct {
	Commit     CommitConfig
	Checkpoint CheckpointConfig
	Query      QueryConfig
}

type CommitConfig struct {
	Strategy committer.StrategyType
	Timeout  time.Duration
}

type CheckpointConfig struct {
	Persistence PersistenceConfig
}

type PersistenceConfig struct {
	Type driver.PersistenceType
	Opts PersistenceOpts
}

type PersistenceOpts struct {
	Path        string
	LockTimeout time.Duration
}

type QueryConfig struct {
	Policy  query.Policy
	Timeout time.Duration
}

type ConfigService interface {
	UnmarshalKey(key string, rawVal interface{}) error
}

// NewConfig loads the configuration under EventsKey, applying the defaults for the missing keys
func NewConfig(configService ConfigService) (*Config, error) {
	c := &Config{
		Commit: CommitConfig{
			Strategy: committer.AllNodes,
			Timeout:  DefaultCommitTimeout,
		},
		Checkpoint: CheckpointConfig{
			Persistence: PersistenceConfig{Type: checkpoint.MemoryPersistence},
		},
		Query: QueryConfig{
			Policy:  query.Sticky,
			Timeout: DefaultQueryTimeout,
		},
	}
	if err := configService.UnmarshalKey(EventsKey, c); err != nil {
		return nil, errors.WithMessagef(err, "unmarshal %s", EventsKey)
	}
	if c.Commit.Timeout < 0 || c.Query.Timeout < 0 {
		return nil, errors.Errorf("negative timeout in %s", EventsKey)
	}
	return c, nil
}

// Store returns the configuration of the checkpoint store
func (c *CheckpointConfig) Store() checkpoint.Config {
	return checkpoint.Config{
		Type:        c.Persistence.Type,
		Path:        c.Persistence.Opts.Path,
		LockTimeout: c.Persistence.Opts.LockTimeout,
	}
}
