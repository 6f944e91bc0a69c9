/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger/fabric-protos-go-apiv2/common"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/protobuf/proto"
)

// MapFabricBlock converts a block received from the given peer into a BlockNotification.
// The validity of each transaction is read from the transactions filter in the block metadata.
// Envelopes that cannot be parsed are skipped.
func MapFabricBlock(node driver.NodeID, block *common.Block) (*driver.BlockNotification, error) {
	if block == nil || block.Header == nil {
		return nil, errors.New("block or block header is nil")
	}
	raw, err := proto.Marshal(block)
	if err != nil {
		return nil, errors.Wrapf(err, "failed marshalling block [%d]", block.Header.Number)
	}

	var filter []byte
	if md := block.GetMetadata().GetMetadata(); len(md) > int(common.BlockMetadataIndex_TRANSACTIONS_FILTER) {
		filter = md[common.BlockMetadataIndex_TRANSACTIONS_FILTER]
	}

	data := block.GetData().GetData()
	txs := make([]*driver.TransactionNotification, 0, len(data))
	for i, envRaw := range data {
		txID, err := transactionID(envRaw)
		if err != nil {
			logger.Warnf("skip transaction [%d] in block [%d] from [%s]: %v", i, block.Header.Number, node, err)
			continue
		}
		code := peer.TxValidationCode_NOT_VALIDATED
		if i < len(filter) {
			code = peer.TxValidationCode(filter[i])
		}
		txs = append(txs, &driver.TransactionNotification{
			TxID:    txID,
			Node:    node,
			Valid:   code == peer.TxValidationCode_VALID,
			Code:    int32(code),
			Payload: envRaw,
		})
	}

	return &driver.BlockNotification{
		Number:       block.Header.Number,
		Payload:      raw,
		Transactions: txs,
	}, nil
}

func transactionID(envRaw []byte) (driver.TxID, error) {
	env := &common.Envelope{}
	if err := proto.Unmarshal(envRaw, env); err != nil {
		return "", errors.Wrap(err, "failed unmarshalling envelope")
	}
	payload := &common.Payload{}
	if err := proto.Unmarshal(env.Payload, payload); err != nil {
		return "", errors.Wrap(err, "failed unmarshalling payload")
	}
	if payload.Header == nil {
		return "", errors.New("payload header is nil")
	}
	chdr := &common.ChannelHeader{}
	if err := proto.Unmarshal(payload.Header.ChannelHeader, chdr); err != nil {
		return "", errors.Wrap(err, "failed unmarshalling channel header")
	}
	if len(chdr.TxId) == 0 {
		return "", errors.New("empty transaction id")
	}
	return chdr.TxId, nil
}
