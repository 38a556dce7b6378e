// Package main provides the verify CLI, which drives the PillBridge front end
// through scripted browser journeys and captures screenshot evidence.
//
// Usage:
//
//	verify hello
//	verify final --target-url http://localhost:5173
//	verify all --unique-emails
//
// See --help for all available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

func main() {
	obs.Init()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(errs.ExitCode(err))
}
