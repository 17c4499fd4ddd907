package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is the daemon's own release version, independent of the wire
// protocol's major version (internal/rpc's serverMajorVersion).
const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "helperd %s\n", version)
		return nil
	},
}
