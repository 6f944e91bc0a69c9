/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"sync"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/services/logging"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/utils/collections"
	"go.uber.org/zap/zapcore"
)

type (
	BlockCallback       = func(block *driver.BlockNotification) error
	TransactionCallback = func(tx *driver.TransactionNotification) error
)

// StartPosition returns the block number a consumer resuming from the store starts from.
// It returns false if the store has no history.
func StartPosition(store Store) (driver.BlockNum, bool) {
	n := store.BlockNumber()
	if n == Unset {
		return 0, false
	}
	return driver.BlockNum(n), true
}

// BlockListener invokes the callback once per block, advancing the store after each block.
// Blocks that do not match the position of the store are skipped.
type BlockListener struct {
	mutex    sync.Mutex
	store    Store
	callback BlockCallback
}

func NewBlockListener(store Store, callback BlockCallback) *BlockListener {
	return &BlockListener{store: store, callback: callback}
}

func (l *BlockListener) OnBlock(block *driver.BlockNotification) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if ok, err := matches(l.store, block); !ok {
		return err
	}
	if err := l.callback(block); err != nil {
		return errors.WithMessagef(err, "callback failed on block [%d]", block.Number)
	}
	return l.store.SetBlockNumber(int64(block.Number) + 1)
}

// TransactionListener invokes the callback once per transaction, recording each processed
// transaction so that a consumer resuming in the middle of a block does not process it twice.
type TransactionListener struct {
	mutex    sync.Mutex
	store    Store
	callback TransactionCallback
}

func NewTransactionListener(store Store, callback TransactionCallback) *TransactionListener {
	return &TransactionListener{store: store, callback: callback}
}

func (l *TransactionListener) OnBlock(block *driver.BlockNotification) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if ok, err := matches(l.store, block); !ok {
		return err
	}
	processed := collections.NewSet(l.store.TransactionIDs()...)
	for _, tx := range block.Transactions {
		if processed.Contains(tx.TxID) {
			if logger.IsEnabledFor(zapcore.DebugLevel) {
				logger.Debugf("skip transaction [%s] of block [%d], already processed", logging.Prefix(tx.TxID), block.Number)
			}
			continue
		}
		if err := l.callback(tx); err != nil {
			return errors.WithMessagef(err, "callback failed on transaction [%s] of block [%d]", tx.TxID, block.Number)
		}
		if err := l.store.AddTransactionID(tx.TxID); err != nil {
			return err
		}
		processed.Add(tx.TxID)
	}
	return l.store.SetBlockNumber(int64(block.Number) + 1)
}

// matches initializes an empty store at the block and tells if the block is the one the store expects
func matches(store Store, block *driver.BlockNotification) (bool, error) {
	if store.BlockNumber() == Unset {
		if err := store.SetBlockNumber(int64(block.Number)); err != nil {
			return false, errors.WithMessagef(err, "failed initializing checkpoint at block [%d]", block.Number)
		}
	}
	if current := store.BlockNumber(); current != int64(block.Number) {
		if logger.IsEnabledFor(zapcore.DebugLevel) {
			logger.Debugf("skip block [%d], checkpoint at [%d]", block.Number, current)
		}
		return false, nil
	}
	return true, nil
}
