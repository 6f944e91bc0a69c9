/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/hyperledger-labs/fabric-gateway-events/cmd/fsc-events/commands"
	"github.com/spf13/cobra"
)

// The main command describes the service and
// defaults to printing the help message.
var mainCmd = &cobra.Command{Use: "fsc-events"}

func main() {
	// For environment variables.
	commands.BindEnv()

	mainCmd.AddCommand(commands.CheckpointCmd())
	mainCmd.AddCommand(commands.ReplayCmd())
	mainCmd.AddCommand(commands.VersionCmd())

	// On failure Cobra prints the usage message and error string, so we only
	// need to exit with a non-0 status
	if mainCmd.Execute() != nil {
		os.Exit(1)
	}
}
