package main

import (
	"os"

	"github.com/ethersub/ethersub-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
