/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	viperutil "github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/config/viper"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/events"
	"github.com/spf13/viper"
)

const (
	CmdRoot = "core"
	// PathEnv overrides the directories where the configuration file is looked up
	PathEnv      = "FSC_EVENTS_CFG_PATH"
	OfficialPath = "/etc/hyperledger-labs/fabric-gateway-events"
)

var logger = logging.MustGetLogger()

var logOutput = os.Stderr

type OnMergeConfigEventHandler interface {
	OnMergeConfig()
}

// Provider gives access to the configuration read from core.yaml.
// Environment variables prefixed by CORE_ override the file.
type Provider struct {
	confPath string
	Backend  *viper.Viper

	mergeConfigMutex sync.Mutex
	handlers         *events.Registry[OnMergeConfigEventHandler]
}

// NewProvider reads core.yaml from confPath, the directory in FSC_EVENTS_CFG_PATH,
// the working directory, or the official path, in this order of priority
func NewProvider(confPath string) (*Provider, error) {
	p := newProvider(confPath)
	if err := p.initViper(); err != nil {
		return nil, err
	}
	if err := p.Backend.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.Errorf("could not find config file, "+
				"please make sure that %s is set to a path which contains %s.yaml", PathEnv, CmdRoot)
		}
		return nil, errors.WithMessagef(err, "error when reading %s config file", CmdRoot)
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewProviderFromReader reads the configuration in yaml format from r
func NewProviderFromReader(r io.Reader) (*Provider, error) {
	p := newProvider("")
	p.Backend.SetConfigType("yaml")
	if err := p.Backend.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "error when reading config")
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func newProvider(confPath string) *Provider {
	return &Provider{
		confPath: confPath,
		Backend:  viper.New(),
		handlers: events.NewRegistry[OnMergeConfigEventHandler](),
	}
}

func (p *Provider) GetDuration(key string) time.Duration {
	return p.Backend.GetDuration(key)
}

func (p *Provider) GetBool(key string) bool {
	return p.Backend.GetBool(key)
}

func (p *Provider) GetInt(key string) int {
	return p.Backend.GetInt(key)
}

func (p *Provider) GetString(key string) string {
	return p.Backend.GetString(key)
}

func (p *Provider) GetStringSlice(key string) []string {
	return p.Backend.GetStringSlice(key)
}

func (p *Provider) IsSet(key string) bool {
	return p.Backend.IsSet(key)
}

func (p *Provider) UnmarshalKey(key string, rawVal interface{}) error {
	return viperutil.EnhancedExactUnmarshal(p.Backend, key, rawVal)
}

// GetPath returns the path at key. Relative paths are resolved against the directory of the config file.
func (p *Provider) GetPath(key string) string {
	return p.TranslatePath(p.Backend.GetString(key))
}

func (p *Provider) TranslatePath(path string) string {
	if path == "" {
		return ""
	}
	return TranslatePath(filepath.Dir(p.Backend.ConfigFileUsed()), path)
}

func (p *Provider) ConfigFileUsed() string {
	return p.Backend.ConfigFileUsed()
}

// MergeConfig merges the yaml configuration in raw and notifies the handlers
func (p *Provider) MergeConfig(raw []byte) error {
	// only one writer at the time
	p.mergeConfigMutex.Lock()
	defer p.mergeConfigMutex.Unlock()

	if err := p.Backend.MergeConfig(bytes.NewReader(raw)); err != nil {
		return errors.Wrap(err, "failed merging config")
	}
	p.handlers.Each(func(h OnMergeConfigEventHandler) error {
		h.OnMergeConfig()
		return nil
	}, func(_ driver.ListenerHandle, err error) {
		logger.Errorf("merge config handler failed: %v", err)
	})
	return nil
}

func (p *Provider) OnMergeConfig(handler OnMergeConfigEventHandler) {
	p.handlers.Add(handler)
}

func (p *Provider) load() error {
	if err := p.substituteEnv(); err != nil {
		return err
	}
	logging.Init(logging.Config{
		Format:  p.Backend.GetString("logging.format"),
		LogSpec: p.Backend.GetString("logging.spec"),
		Writer:  logOutput,
	})
	return nil
}

// Manually override keys if the respective environment variable is set, because viper doesn't do
// that for UnmarshalKey values (see https://github.com/spf13/viper/pull/1699).
// Example: CORE_EVENTS_COMMIT_STRATEGY sets events.commit.strategy.
func (p *Provider) substituteEnv() error {
	prefix := strings.ToUpper(CmdRoot) + "_"
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}
		name, val, _ := strings.Cut(e, "=")
		if len(val) == 0 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "."))

		keys := strings.Split(key, ".")
		parent := strings.Join(keys[:len(keys)-1], ".")
		if !p.Backend.IsSet(parent) {
			logger.Infof("applying %s, parent [%s] not found in %s.yaml", name, parent, CmdRoot)
			p.Backend.Set(key, val)
			continue
		}
		if len(p.Backend.GetStringMap(key)) > 0 {
			logger.Warnf("skipping %s: cannot override maps", name)
			continue
		}

		root := p.Backend.GetStringMap(keys[0])
		if err := setDeepValue(root, keys, val); err != nil {
			return errors.Wrapf(err, "error when substituting %s", name)
		}
		p.Backend.Set(keys[0], root)
		logger.Infof("applying %s", name)
	}
	return nil
}

// setDeepValue sets the value at the deepest level of m, the map of keys[0]
func setDeepValue(m map[string]any, keys []string, value any) error {
	if len(keys) < 2 {
		return errors.New("can't set root key")
	}
	current := m
	for i := 1; i < len(keys)-1; i++ {
		next, ok := current[keys[i]].(map[string]any)
		if !ok {
			return errors.Errorf("expected map at key [%s]", keys[i])
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
	return nil
}

func (p *Provider) initViper() error {
	if len(p.confPath) != 0 {
		p.Backend.AddConfigPath(p.confPath)
	}
	if altPath := os.Getenv(PathEnv); altPath != "" {
		// the only path considered
		if !dirExists(altPath) {
			return errors.Errorf("%s %s does not exist", PathEnv, altPath)
		}
		p.Backend.AddConfigPath(altPath)
	} else {
		p.Backend.AddConfigPath("./")
		if dirExists(OfficialPath) {
			p.Backend.AddConfigPath(OfficialPath)
		}
	}
	p.Backend.SetConfigName(CmdRoot)
	return nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

func TranslatePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
