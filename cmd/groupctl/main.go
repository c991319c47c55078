package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// configError marks failures caused by configuration rather than runtime.
type configError struct {
	err error
}

func (e configError) Error() string {
	return e.err.Error()
}

func (e configError) Unwrap() error {
	return e.err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "groupctl: %v\n", err)
	}
	stop()
	os.Exit(code)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr configError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	return exitRuntime
}
