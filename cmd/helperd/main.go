// Command helperd is the legacy-offload helper daemon: it accepts JSON
// requests over a local stream socket and dispatches them to registered
// helper modules (database, SSH/SFTP, FTP, SMTP, XML/XPath, cipher, lock,
// datetime), preserving per-session resources across calls.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
