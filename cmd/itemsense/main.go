// itemsense - webcam item classifier that lights an Arduino pin per item
//
// Usage:
//
//	itemsense watch                      # live overlay, no hardware
//	itemsense actuate --map pins.json    # live overlay + LED commands
//	itemsense evaluate --out acc.csv     # per-item accuracy on captures
//	itemsense models                     # list model artifacts
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-itemsense/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error("❌ itemsense failed", "error", err)
		os.Exit(1)
	}
}
