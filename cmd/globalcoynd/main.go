// globalcoynd is the GlobalCoyn node daemon: it opens (or initializes) the
// chain and wallet store, starts gossip and mining, and runs until a
// shutdown signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/internal/node"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Wire the orchestrator: opens storage, restores the chain from
	// its snapshot/log (or initializes genesis on a fresh data dir),
	// and constructs the mempool, miner, peer manager, and keystore.
	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 3. Start background workers: gossip listener/dialler/discovery,
	// mempool expiry, and (if configured) mining.
	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting node: %v\n", err)
		os.Exit(1)
	}

	info := n.GetChainInfo()
	fmt.Printf("GlobalCoyn node started: network=%s height=%d tip=%s\n",
		cfg.Network, info.Height, info.TipHash.String())

	// ── 4. Wait for shutdown signal, then drain workers in reverse
	// dependency order (mining → gossip → chain → storage).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received %s, shutting down\n", sig)

	if err := n.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		os.Exit(1)
	}
}
