// Command pillbridge-fake serves a minimal PillBridge front end and API so
// the verify journeys have a local target.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/fakeapp"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

func main() {
	obs.Init()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadApp()
	app, err := fakeapp.New(ctx, cfg, fakeapp.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	obs.Pkg("main").Info("listening", "addr", ln.Addr().String())
	return app.Serve(ctx, ln)
}
