/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package checkpoint

import (
	"encoding/json"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
)

const recordVersion = 1

// record is the persisted form of a state
type record struct {
	Version        int           `json:"version"`
	BlockNumber    int64         `json:"blockNumber"`
	TransactionIDs []driver.TxID `json:"transactionIds"`
}

func encodeRecord(s state) ([]byte, error) {
	raw, err := json.Marshal(&record{
		Version:        recordVersion,
		BlockNumber:    s.blockNumber,
		TransactionIDs: s.sortedTxIDs(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed encoding checkpoint")
	}
	return raw, nil
}

func decodeRecord(raw []byte) (state, error) {
	r := &record{}
	if err := json.Unmarshal(raw, r); err != nil {
		return state{}, errors.Wrap(err, "failed decoding checkpoint")
	}
	if r.Version != recordVersion {
		return state{}, errors.Wrapf(ErrUnsupportedVersion, "version [%d]", r.Version)
	}
	if r.BlockNumber < Unset {
		return state{}, errors.Errorf("invalid block number [%d] in checkpoint", r.BlockNumber)
	}
	return newState(r.BlockNumber, r.TransactionIDs), nil
}
