/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package commands

import (
	"strings"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = logging.MustGetLogger()

// EnvPrefix prefixes the environment variables read by the commands
const EnvPrefix = "fsc_events"

var (
	checkpointTypeKey = config.Join("checkpoint", "type")
	checkpointPathKey = config.Join("checkpoint", "path")
)

// BindEnv makes the global viper read FSC_EVENTS_CHECKPOINT_TYPE and FSC_EVENTS_CHECKPOINT_PATH
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// storeFlags select the checkpoint store a command works on.
// Flags take precedence over the environment, the environment over the configuration file.
type storeFlags struct {
	configPath  string
	storeType   string
	path        string
	lockTimeout time.Duration
}

func (f *storeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Sets the directory containing core.yaml")
	flags.StringVarP(&f.storeType, "type", "t", "", "Sets the checkpoint persistence type (memory, file, badger, bolt)")
	flags.StringVarP(&f.path, "path", "p", "", "Sets the path of the checkpoint storage")
	flags.DurationVar(&f.lockTimeout, "lockTimeout", 0, "Sets how long to wait for a locked checkpoint storage")
}

func (f *storeFlags) storeConfig() (checkpoint.Config, error) {
	var cfg checkpoint.Config
	if len(f.configPath) != 0 {
		p, err := config.NewProvider(f.configPath)
		if err != nil {
			return cfg, errors.WithMessagef(err, "failed loading configuration from [%s]", f.configPath)
		}
		c, err := fabric.NewConfig(p)
		if err != nil {
			return cfg, err
		}
		cfg = c.Checkpoint.Store()
		cfg.Path = p.TranslatePath(cfg.Path)
	}
	if len(f.storeType) != 0 {
		cfg.Type = driver.PersistenceType(f.storeType)
	} else if t := viper.GetString(checkpointTypeKey); len(t) != 0 {
		cfg.Type = driver.PersistenceType(t)
	}
	if len(f.path) != 0 {
		cfg.Path = f.path
	} else if p := viper.GetString(checkpointPathKey); len(p) != 0 {
		cfg.Path = p
	}
	if f.lockTimeout > 0 {
		cfg.LockTimeout = f.lockTimeout
	}
	if cfg.Type == "" || cfg.Type == checkpoint.MemoryPersistence {
		return cfg, errors.New("a persistent checkpoint type must be specified")
	}
	return cfg, nil
}

func (f *storeFlags) open() (checkpoint.Store, error) {
	cfg, err := f.storeConfig()
	if err != nil {
		return nil, err
	}
	logger.Debugf("opening checkpoint [%s] at [%s]", cfg.Type, cfg.Path)
	return checkpoint.Open(cfg)
}
