// Package main provides the CLI entry point for the relay, the realtime
// presence and message fan-out service of the consultation platform.
//
// The relay tracks which users have live websocket connections, forwards
// chat messages to the sender's and recipient's rooms, and propagates read
// receipts after updating the message store.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// Bootstrap the message table for a local store:
//
//	relay migrate --config relay.yaml
//
// # Environment Variables
//
//   - RELAY_CONFIG: Path to configuration file (default: relay.yaml)
//   - RELAY_DB_PASSWORD or any variable referenced as ${VAR} in the config
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
