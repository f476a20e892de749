package main

import (
	"fmt"
	"os"

	serrors "github.com/jkassis/bbstore/internal/errors"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bbstore:", err)
		if hint := serrors.Suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
