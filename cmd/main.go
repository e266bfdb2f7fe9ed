package main

import (
	"fmt"
	"os"

	"github.com/oraclemesh/go-oraclemesh/cmd/oracle/launcher"
)

func main() {
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
