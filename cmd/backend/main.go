package main

import (
	"os"

	"file-share/internal/cli"
)

// Overridable at build time: -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := cli.NewRootCmd(cli.VersionInfo{Version: version, Commit: commit})
	if err := root.Execute(); err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
