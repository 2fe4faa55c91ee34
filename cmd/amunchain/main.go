package main

import (
	"fmt"
	"os"

	"github.com/amunchain/amunchain/internal/cli"
	"github.com/pkg/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
