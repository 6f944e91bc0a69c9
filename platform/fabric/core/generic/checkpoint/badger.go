/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
)

var (
	positionKey = []byte("position")
	txIDsKey    = []byte("txids")
)

type badgerPersister struct {
	db *badger.DB
}

// OpenBadger returns a store backed by a badger database in the directory at path
func OpenBadger(path string) (Store, error) {
	if len(path) == 0 {
		return nil, errors.New("checkpoint badger path cannot be empty")
	}

	opt := badger.DefaultOptions(path)
	opt.Logger = logger
	opt.SyncWrites = true
	opt.MemTableSize = 1 << 20
	opt.ValueLogFileSize = 1 << 20

	db, err := badger.Open(opt)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, errors.Wrapf(ErrLocked, "[%s]", path)
		}
		return nil, errors.Wrapf(err, "could not open DB at '%s'", path)
	}
	s, err := newStore(&badgerPersister{db: db})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (p *badgerPersister) load() (state, error) {
	s := newState(Unset, nil)
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(positionKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed getting position")
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "failed reading position")
		}
		if len(raw) != 8 {
			return errors.Errorf("invalid position of [%d] bytes", len(raw))
		}
		blockNumber := int64(binary.BigEndian.Uint64(raw))

		var txIDs []driver.TxID
		item, err = txn.Get(txIDsKey)
		if err != nil && err != badger.ErrKeyNotFound {
			return errors.Wrap(err, "failed getting transaction ids")
		}
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return errors.Wrap(err, "failed reading transaction ids")
			}
			if err := json.Unmarshal(raw, &txIDs); err != nil {
				return errors.Wrap(err, "failed decoding transaction ids")
			}
		}
		s = newState(blockNumber, txIDs)
		return nil
	})
	return s, err
}

func (p *badgerPersister) save(s state) error {
	position := make([]byte, 8)
	binary.BigEndian.PutUint64(position, uint64(s.blockNumber))
	txIDs, err := json.Marshal(s.sortedTxIDs())
	if err != nil {
		return errors.Wrap(err, "failed encoding transaction ids")
	}
	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(positionKey, position); err != nil {
			return errors.Wrap(err, "failed setting position")
		}
		if err := txn.Set(txIDsKey, txIDs); err != nil {
			return errors.Wrap(err, "failed setting transaction ids")
		}
		return nil
	})
}

func (p *badgerPersister) close() error {
	if err := p.db.Close(); err != nil {
		return errors.Wrap(err, "could not close DB")
	}
	return nil
}
