package main

import (
	"os"

	"github.com/odyssey-erp/ledger/cmd/ledger/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
