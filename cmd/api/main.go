package main

import (
	"fmt"
	"os"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
