/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/delivery"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"
)

// recordedBlock is a block as received from a node, in a recorded stream
type recordedBlock struct {
	Number       driver.BlockNum `yaml:"number"`
	Node         driver.NodeID   `yaml:"node"`
	Transactions []struct {
		ID    driver.TxID `yaml:"id"`
		Valid bool        `yaml:"valid"`
	} `yaml:"transactions"`
}

// ReplayCmd returns the command that feeds a recorded stream of blocks to a checkpointed listener
func ReplayCmd() *cobra.Command {
	flags := &storeFlags{}
	var blocksFile string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replays a recorded stream of blocks through a checkpointed listener.",
		Long: `Replays a recorded stream of blocks through a checkpointed listener.
The blocks of each node are delivered concurrently, in the recorded order, and the listener
prints each transaction once, in block order. A second replay resumes from the checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(blocksFile) == 0 {
				return errors.New("blocks file must be specified")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return replay(ctx, cmd, flags, blocksFile)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&blocksFile, "blocks", "f", "", "Sets the yaml file containing the recorded blocks")
	return cmd
}

func readBlocks(path string) ([]*driver.BlockNotification, map[driver.NodeID][]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed reading [%s]", path)
	}
	var recorded []recordedBlock
	if err := yaml.Unmarshal(raw, &recorded); err != nil {
		return nil, nil, errors.Wrapf(err, "failed parsing [%s]", path)
	}

	blocks := make([]*driver.BlockNotification, len(recorded))
	byNode := map[driver.NodeID][]int{}
	for i, r := range recorded {
		b := &driver.BlockNotification{Number: r.Number}
		for _, tx := range r.Transactions {
			b.Transactions = append(b.Transactions, &driver.TransactionNotification{
				TxID:  tx.ID,
				Node:  r.Node,
				Valid: tx.Valid,
			})
		}
		blocks[i] = b
		byNode[r.Node] = append(byNode[r.Node], i)
	}
	return blocks, byNode, nil
}

func replay(ctx context.Context, cmd *cobra.Command, flags *storeFlags, blocksFile string) error {
	blocks, byNode, err := readBlocks(blocksFile)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	store, err := flags.open()
	if err != nil {
		return err
	}
	defer store.Close()

	start, ok := checkpoint.StartPosition(store)
	if !ok {
		start = blocks[0].Number
		for _, b := range blocks {
			if b.Number < start {
				start = b.Number
			}
		}
	}

	inputs := make([]<-chan *driver.BlockNotification, 0, len(byNode))
	for _, indexes := range byNode {
		ch := make(chan *driver.BlockNotification, len(indexes))
		for _, i := range indexes {
			ch <- blocks[i]
		}
		close(ch)
		inputs = append(inputs, ch)
	}
	source := delivery.NewChannelSource(inputs...)
	ordered := delivery.NewOrderedBlockSource(source, delivery.WithStartPosition(start))
	defer ordered.Close()

	out := cmd.OutOrStdout()
	var current driver.BlockNum
	transactions := checkpoint.NewTransactionListener(store, func(tx *driver.TransactionNotification) error {
		_, err := fmt.Fprintf(out, "block [%d] transaction [%s] valid [%t]\n", current, tx.TxID, tx.Valid)
		return err
	})
	failure := atomic.NewError(nil)
	ordered.AddBlockListener(driver.BlockListenerFunc(func(b *driver.BlockNotification) error {
		current = b.Number
		if err := transactions.OnBlock(b); err != nil {
			failure.CompareAndSwap(nil, err)
			return err
		}
		return nil
	}))

	if err := source.Run(ctx); err != nil {
		return errors.Wrap(err, "replay interrupted")
	}
	if err := failure.Load(); err != nil {
		return err
	}
	logger.Infof("replay done, checkpoint at block [%d]", store.BlockNumber())
	_, err = fmt.Fprintf(out, "checkpoint at block [%d]\n", store.BlockNumber())
	return err
}
