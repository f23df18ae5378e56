package main

import (
	"os"

	"github.com/kernelci/logspec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
