package main

import (
	"context"
	"fmt"
	"os"

	"github.com/motti-landau/kvstore/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
