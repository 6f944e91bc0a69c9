/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/utils/collections"
)

var logger = logging.MustGetLogger()

// Unset is the block number of a store with no history
const Unset int64 = -1

const (
	MemoryPersistence driver.PersistenceType = "memory"
	FilePersistence   driver.PersistenceType = "file"
	BadgerPersistence driver.PersistenceType = "badger"
	BoltPersistence   driver.PersistenceType = "bolt"
)

var (
	// ErrLocked is returned when the backing storage is in use by another store
	ErrLocked = errors.New("checkpoint storage locked by another store")
	// ErrUnsupportedVersion is returned when the persisted record has an unknown format version
	ErrUnsupportedVersion = errors.New("unsupported checkpoint version")
	// ErrClosed is returned by the mutating operations of a closed store
	ErrClosed = errors.New("checkpoint store closed")
)

// Store records the position of an event consumer: the number of the next block to process
// and the transactions of that block already processed.
// All methods are safe for concurrent use.
type Store interface {
	// BlockNumber returns the current block number, or Unset
	BlockNumber() int64
	// SetBlockNumber moves to the given block number and clears the transaction ids
	SetBlockNumber(number int64) error
	// TransactionIDs returns a sorted snapshot of the transaction ids recorded for the current block
	TransactionIDs() []driver.TxID
	// AddTransactionID records a transaction of the current block as processed
	AddTransactionID(txID driver.TxID) error
	Close() error
}

// Config selects and configures a Store
type Config struct {
	Type driver.PersistenceType
	// Path is the file, or directory for badger, backing the store
	Path string
	// LockTimeout is how long Open waits for a locked storage before failing with ErrLocked
	LockTimeout time.Duration
}

// Driver opens a store of a given persistence type
type Driver = func(cfg Config) (Store, error)

// Drivers are the persistence types Open supports
var Drivers = []driver.NamedDriver[Driver]{
	{Name: MemoryPersistence, Driver: func(Config) (Store, error) { return NewMemory(), nil }},
	{Name: FilePersistence, Driver: func(cfg Config) (Store, error) { return OpenFile(cfg.Path, cfg.LockTimeout) }},
	{Name: BadgerPersistence, Driver: func(cfg Config) (Store, error) { return OpenBadger(cfg.Path) }},
	{Name: BoltPersistence, Driver: func(cfg Config) (Store, error) { return OpenBolt(cfg.Path, cfg.LockTimeout) }},
}

// Open returns the store described by the configuration. An empty type selects the memory store.
func Open(cfg Config) (Store, error) {
	if len(cfg.Type) == 0 {
		cfg.Type = MemoryPersistence
	}
	for _, d := range Drivers {
		if d.Name == cfg.Type {
			return d.Driver(cfg)
		}
	}
	return nil, errors.Errorf("unknown checkpoint persistence type [%s]", cfg.Type)
}

// state is the position held by a store
type state struct {
	blockNumber int64
	txIDs       collections.Set[driver.TxID]
}

func newState(blockNumber int64, txIDs []driver.TxID) state {
	return state{blockNumber: blockNumber, txIDs: collections.NewSet(txIDs...)}
}

func (s state) sortedTxIDs() []driver.TxID {
	res := s.txIDs.ToSlice()
	sort.Strings(res)
	return res
}

// persister stores the state durably. save returns once the state is durable.
type persister interface {
	load() (state, error)
	save(s state) error
	close() error
}

// store keeps the state in memory and writes every change through the persister
// before making it visible
type store struct {
	mutex     sync.RWMutex
	state     state
	persister persister
	closed    bool
}

func newStore(p persister) (*store, error) {
	s, err := p.load()
	if err != nil {
		return nil, err
	}
	return &store{state: s, persister: p}, nil
}

func (s *store) BlockNumber() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.blockNumber
}

func (s *store) SetBlockNumber(number int64) error {
	if number < Unset {
		return errors.Errorf("invalid block number [%d]", number)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := newState(number, nil)
	if err := s.persister.save(next); err != nil {
		return errors.Wrapf(err, "failed saving block number [%d]", number)
	}
	s.state = next
	return nil
}

func (s *store) TransactionIDs() []driver.TxID {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.sortedTxIDs()
}

func (s *store) AddTransactionID(txID driver.TxID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.txIDs.Contains(txID) {
		return nil
	}

	next := newState(s.state.blockNumber, append(s.state.sortedTxIDs(), txID))
	if err := s.persister.save(next); err != nil {
		return errors.Wrapf(err, "failed saving transaction [%s]", txID)
	}
	s.state = next
	return nil
}

func (s *store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.persister.close()
}
