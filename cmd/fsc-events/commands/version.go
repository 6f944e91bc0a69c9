/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and CommitSHA are set at build time with -ldflags
var (
	Version   = "latest"
	CommitSHA = "development build"
)

// VersionCmd returns the command printing the build information
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print current version of fsc-events.",
		Long:  `Print current version of fsc-events.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, err := fmt.Fprint(cmd.OutOrStdout(), GetInfo())
			return err
		},
	}
}

// GetInfo returns version information for the command
func GetInfo() string {
	return fmt.Sprintf("fsc-events:\n Version: %s\n Commit SHA: %s\n Go version: %s\n OS/Arch: %s\n",
		Version, CommitSHA, runtime.Version(), fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
}
