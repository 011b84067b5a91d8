// Command coursewatchd runs the coursewatch daemon in the foreground,
// for systemd units and containers that manage the process themselves.
// The coursewatch CLI launches the same runtime through its hidden
// daemon subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"coursewatch/internal/config"
	"coursewatch/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	socketPath := flag.String("socket", "", "daemon control socket path")
	flag.Parse()

	cfg, resolved, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "config file %s not found, using defaults\n", resolved)
	}

	if err := daemonrun.Run(context.Background(), cfg, runOptions(cfg, *socketPath)); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}

func runOptions(cfg *config.Config, socketPath string) daemonrun.Options {
	opts := daemonrun.Options{SocketPath: socketPath}
	if cfg != nil {
		opts.LogLevel = cfg.Logging.Level
	}
	return opts
}
