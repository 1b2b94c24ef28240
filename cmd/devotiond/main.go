package main

import (
	"os"

	"github.com/Proton-105/devotion/cmd/devotiond/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
