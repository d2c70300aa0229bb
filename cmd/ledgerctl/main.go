package main

import (
	"os"

	"github.com/dvloznov/statement-ledger/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
