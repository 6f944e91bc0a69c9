/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"go.etcd.io/bbolt"
)

// bbolt waits forever for its file lock when the timeout is zero
const minBoltLockTimeout = 50 * time.Millisecond

var (
	checkpointBucket = []byte("checkpoint")
	recordKey        = []byte("record")
)

type boltPersister struct {
	db *bbolt.DB
}

// OpenBolt returns a store backed by the bbolt database file at path
func OpenBolt(path string, lockTimeout time.Duration) (Store, error) {
	if len(path) == 0 {
		return nil, errors.New("checkpoint bolt path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed creating directory of [%s]", path)
	}
	if lockTimeout < minBoltLockTimeout {
		lockTimeout = minBoltLockTimeout
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err == bbolt.ErrTimeout {
		return nil, errors.Wrapf(ErrLocked, "[%s]", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db [%s]", path)
	}
	s, err := newStore(&boltPersister{db: db})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (p *boltPersister) load() (state, error) {
	var raw []byte
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(checkpointBucket)
		if err != nil {
			return errors.Wrap(err, "failed to create bucket")
		}
		if v := b.Get(recordKey); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return state{}, err
	}
	if raw == nil {
		return newState(Unset, nil), nil
	}
	return decodeRecord(raw)
}

func (p *boltPersister) save(s state) error {
	raw, err := encodeRecord(s)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(checkpointBucket)
		if err != nil {
			return errors.Wrap(err, "failed to create bucket")
		}
		return b.Put(recordKey, raw)
	})
}

func (p *boltPersister) close() error {
	return p.db.Close()
}
