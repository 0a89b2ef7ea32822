package node

import (
	"testing"
	"time"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultDev()
	cfg.DataDir = t.TempDir()
	cfg.P2P.Port = 0
	cfg.Log.Level = "error"
	return cfg
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Stop() })
	return n
}

func TestNode_GenesisChainInfo(t *testing.T) {
	n := newTestNode(t)
	info := n.GetChainInfo()
	if info.Height != 0 {
		t.Fatalf("Height = %d, want 0 at genesis", info.Height)
	}
}

func TestNode_WalletCreateAndBalance(t *testing.T) {
	n := newTestNode(t)

	addr, mnemonic, err := n.WalletCreate("correct horse battery staple")
	if err != nil {
		t.Fatalf("WalletCreate: %v", err)
	}
	if addr == "" || mnemonic == "" {
		t.Fatal("expected non-empty address and mnemonic")
	}

	addrs, err := n.WalletList()
	if err != nil {
		t.Fatalf("WalletList: %v", err)
	}
	found := false
	for _, a := range addrs {
		if a == addr {
			found = true
		}
	}
	if !found {
		t.Fatalf("WalletList %v does not contain created address %s", addrs, addr)
	}

	parsed, err := types.ParseAddress(addr)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if bal := n.WalletBalance(parsed); bal != 0 {
		t.Fatalf("fresh address balance = %v, want 0", bal)
	}
}

func TestNode_WalletImportMnemonicRoundTrip(t *testing.T) {
	n := newTestNode(t)

	addr1, mnemonic, err := n.WalletCreate("pw1")
	if err != nil {
		t.Fatalf("WalletCreate: %v", err)
	}

	addr2, err := n.WalletImport(mnemonic, "pw2")
	if err != nil {
		t.Fatalf("WalletImport: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("re-importing the same mnemonic produced a different address: %s vs %s", addr1, addr2)
	}
}

func TestNode_StartStop(t *testing.T) {
	n := newTestNode(t)
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNode_MempoolSnapshotEmptyInitially(t *testing.T) {
	n := newTestNode(t)
	if hashes := n.MempoolSnapshot(); len(hashes) != 0 {
		t.Fatalf("expected empty mempool, got %d entries", len(hashes))
	}
}
