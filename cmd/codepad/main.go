package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/codepad/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "codepad: %v\n", err)
		os.Exit(1)
	}
}
