/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package commands

import (
	"fmt"

	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/driver"
	"github.com/hyperledger-labs/fabric-gateway-events/platform/fabric/core/generic/checkpoint"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// checkpointView is the printed form of a checkpoint
type checkpointView struct {
	BlockNumber    int64         `yaml:"blockNumber"`
	TransactionIDs []driver.TxID `yaml:"transactionIds"`
}

// CheckpointCmd returns the command to inspect and reset checkpoints
func CheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset a checkpoint.",
	}
	cmd.AddCommand(showCmd(), resetCmd())
	return cmd
}

func showCmd() *cobra.Command {
	flags := &storeFlags{}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Prints the position recorded in a checkpoint.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := yaml.Marshal(&checkpointView{
				BlockNumber:    store.BlockNumber(),
				TransactionIDs: store.TransactionIDs(),
			})
			if err != nil {
				return errors.Wrap(err, "failed marshalling checkpoint")
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func resetCmd() *cobra.Command {
	flags := &storeFlags{}
	var block int64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Moves a checkpoint to a block, forgetting the processed transactions.",
		Long:  `Moves a checkpoint to a block, forgetting the processed transactions. Without --block the checkpoint is emptied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetBlockNumber(block); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to block [%d]\n", block)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64VarP(&block, "block", "b", checkpoint.Unset, "Sets the block to resume from")
	return cmd
}
