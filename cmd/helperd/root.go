package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "helperd",
	Short: "Legacy-offload helper daemon",
	Long: "helperd is a long-running local daemon that offloads library-backed\n" +
		"legacy operations (databases, SSH/SFTP/FTP, SMTP, XML/XPath, symmetric\n" +
		"ciphers, file locking, date/time) from a legacy host process, routing\n" +
		"JSON requests over a local stream socket to registered helper modules.",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
}
