// gcn-cli is a thin command-line client that exercises the node
// orchestrator's facade in-process against a node's data directory. There
// is no REST facade in this repo's scope, so gcn-cli opens the same
// chain.log/chain.snapshot/wallets.dat files a running globalcoynd would;
// run it only while globalcoynd is stopped, since badger holds an
// exclusive lock on the index directory.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/internal/node"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/types"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	dataDir := ""
	network := "mainnet"
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = strings.TrimPrefix(args[0], "--datadir=")
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = strings.TrimPrefix(args[0], "--network=")
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default(parseNetwork(network))
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Log.Level = "error"
	if err := config.EnsureDataDirs(cfg); err != nil {
		fatal("preparing data directory: %v", err)
	}

	n, err := node.New(cfg)
	if err != nil {
		fatal("opening node: %v", err)
	}
	defer n.Stop()

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "status":
		cmdStatus(n)
	case "block":
		cmdBlock(n, cmdArgs)
	case "balance":
		cmdBalance(n, cmdArgs)
	case "history":
		cmdHistory(n, cmdArgs)
	case "mempool":
		cmdMempool(n)
	case "peers":
		cmdPeers(n)
	case "connect":
		cmdConnect(n, cmdArgs)
	case "wallet":
		cmdWallet(n, cmdArgs)
	case "send":
		cmdSend(n, cmdArgs)
	case "mine":
		cmdMine(n, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fatal("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: gcn-cli [--datadir <path>] [--network mainnet|testnet|dev] <command> [args]

Commands:
  status                               Chain tip, difficulty, and supply
  block <height|hash>                  Show a block
  balance <address>                    Confirmed balance of an address
  history <address>                    Every transaction touching an address
  mempool                              Pending transaction hashes
  peers                                Connected peers
  connect <host:port>                  Dial a peer explicitly
  wallet create                        Generate a new address
  wallet import <mnemonic|hex-key>     Import an existing key
  wallet list                          List keystore addresses
  send --from <addr> --to <addr> --amount <amt> [--fee <amt>]
                                        Sign and submit a transaction
  mine start <address> | stop | status Control block production
`)
}

func parseNetwork(s string) config.NetworkType {
	switch strings.ToLower(s) {
	case "testnet":
		return config.Testnet
	case "dev":
		return config.Dev
	default:
		return config.Mainnet
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdStatus(n *node.Node) {
	info := n.GetChainInfo()
	fmt.Printf("height:     %d\n", info.Height)
	fmt.Printf("tip:        %s\n", info.TipHash.String())
	fmt.Printf("difficulty: 0x%08x\n", info.DifficultyBits)
	fmt.Printf("supply:     %s GCN\n", info.Supply.String())
}

func cmdBlock(n *node.Node, args []string) {
	if len(args) != 1 {
		fatal("usage: block <height|hash>")
	}
	if height, err := strconv.ParseUint(args[0], 10, 64); err == nil {
		b, err := n.GetBlockByHeight(height)
		if err != nil {
			fatal("%v", err)
		}
		printBlock(b)
		return
	}
	hash, err := types.HexToHash(args[0])
	if err != nil {
		fatal("invalid height or hash: %v", err)
	}
	b, err := n.GetBlock(hash)
	if err != nil {
		fatal("%v", err)
	}
	printBlock(b)
}

func printBlock(b *block.Block) {
	fmt.Printf("index:      %d\n", b.Header.Index)
	fmt.Printf("hash:       %s\n", b.Hash().String())
	fmt.Printf("prev:       %s\n", b.Header.PreviousHash.String())
	fmt.Printf("timestamp:  %d\n", b.Header.Timestamp)
	fmt.Printf("merkle:     %s\n", b.Header.MerkleRoot.String())
	fmt.Printf("nonce:      %d\n", b.Header.Nonce)
	fmt.Printf("difficulty: 0x%08x\n", b.Header.DifficultyBits)
	fmt.Printf("txs:        %d\n", len(b.Transactions))
	for _, t := range b.Transactions {
		fmt.Printf("  %s  %s -> %s  amount=%s fee=%s\n",
			t.TxHash().String(), t.Sender, t.Recipient.String(), t.Amount.String(), t.Fee.String())
	}
}

func cmdBalance(n *node.Node, args []string) {
	if len(args) != 1 {
		fatal("usage: balance <address>")
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	fmt.Println(n.WalletBalance(addr).String())
}

func cmdHistory(n *node.Node, args []string) {
	if len(args) != 1 {
		fatal("usage: history <address>")
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	txs, err := n.AddressHistory(addr)
	if err != nil {
		fatal("%v", err)
	}
	for _, t := range txs {
		fmt.Printf("%s  %s -> %s  amount=%s fee=%s\n",
			t.TxHash().String(), t.Sender, t.Recipient.String(), t.Amount.String(), t.Fee.String())
	}
}

func cmdMempool(n *node.Node) {
	for _, h := range n.MempoolSnapshot() {
		fmt.Println(h.String())
	}
}

func cmdPeers(n *node.Node) {
	status := n.NetworkStatus()
	fmt.Printf("peers: %d\n", status.PeerCount)
	for _, p := range status.Peers {
		fmt.Printf("  %s:%d\n", p.Host, p.Port)
	}
}

func cmdConnect(n *node.Node, args []string) {
	if len(args) != 1 {
		fatal("usage: connect <host:port>")
	}
	if err := n.ConnectPeer(args[0]); err != nil {
		fatal("%v", err)
	}
}

func cmdWallet(n *node.Node, args []string) {
	if len(args) == 0 {
		fatal("usage: wallet create|import|list")
	}
	switch args[0] {
	case "create":
		password := promptPassword("New wallet password: ")
		addr, mnemonic, err := n.WalletCreate(password)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("address:  %s\n", addr)
		fmt.Printf("mnemonic: %s\n", mnemonic)
		fmt.Println("Write this mnemonic down; it is shown only once.")
	case "import":
		if len(args) != 2 {
			fatal("usage: wallet import <mnemonic|hex-key>")
		}
		password := promptPassword("Wallet password: ")
		addr, err := n.WalletImport(args[1], password)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("address: %s\n", addr)
	case "list":
		addrs, err := n.WalletList()
		if err != nil {
			fatal("%v", err)
		}
		for _, a := range addrs {
			fmt.Println(a)
		}
	default:
		fatal("unknown wallet subcommand: %s", args[0])
	}
}

func cmdSend(n *node.Node, args []string) {
	var from, to, amountStr, feeStr string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--from":
			i++
			from = args[i]
		case "--to":
			i++
			to = args[i]
		case "--amount":
			i++
			amountStr = args[i]
		case "--fee":
			i++
			feeStr = args[i]
		default:
			fatal("unknown flag: %s", args[i])
		}
	}
	if from == "" || to == "" || amountStr == "" {
		fatal("usage: send --from <addr> --to <addr> --amount <amt> [--fee <amt>]")
	}
	recipient, err := types.ParseAddress(to)
	if err != nil {
		fatal("invalid recipient: %v", err)
	}
	amount, err := types.ParseAmount(amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	fee := types.Amount(0)
	if feeStr != "" {
		fee, err = types.ParseAmount(feeStr)
		if err != nil {
			fatal("invalid fee: %v", err)
		}
	}
	password := promptPassword("Wallet password: ")
	hash, err := n.WalletSignAndSubmit(from, password, recipient, amount, fee, nil)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(hash.String())
}

func cmdMine(n *node.Node, args []string) {
	if len(args) == 0 {
		fatal("usage: mine start <address>|stop|status")
	}
	switch args[0] {
	case "start":
		if len(args) != 2 {
			fatal("usage: mine start <address>")
		}
		addr, err := types.ParseAddress(args[1])
		if err != nil {
			fatal("invalid address: %v", err)
		}
		if err := n.StartMining(addr); err != nil {
			fatal("%v", err)
		}
		fmt.Println("mining started")
	case "stop":
		n.StopMining()
		fmt.Println("mining stopped")
	case "status":
		s := n.MiningStatus()
		fmt.Printf("running: %v\n", s.Running)
		fmt.Printf("hashes:  %d\n", s.CurrentHashes)
		if s.Running {
			fmt.Printf("started: %s\n", s.StartedAt)
		}
	default:
		fatal("unknown mine subcommand: %s", args[0])
	}
}

// promptPassword reads a password from the terminal without echoing it,
// falling back to a plain-line read when stdin isn't a terminal (e.g.
// under test harnesses or piped input).
func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fatal("reading password: %v", err)
		}
		return string(b)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fatal("reading password: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}
