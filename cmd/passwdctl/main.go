package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/m-217/passwdctl/passwd/common"
)

func main() {
	if err := newCLI().rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidArgument), errors.Is(err, common.ErrConfiguration):
		return 2
	case errors.Is(err, common.ErrAlreadyExists):
		return 3
	case errors.Is(err, common.ErrUnsupported):
		return 4
	case common.IsFatal(err):
		return 5
	}
	return 1
}
