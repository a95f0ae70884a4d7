package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vitrine/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the process exit contract: run
// failures exit 1, configuration and credential problems exit 2. Commands
// that know their exact code wrap it in an exitCodeError.
func exitCodeFor(err error) int {
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	if errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrAuth) {
		return 2
	}
	return 1
}

type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }
