package wallet

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/globalcoyn/globalcoyn/pkg/crypto"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.dat")
	ks, err := NewKeystore(path)
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	return ks
}

func testPrivKeyBytes(t *testing.T) []byte {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return priv.Serialize()
}

func TestKeystore_PutAndGet(t *testing.T) {
	ks := testKeystore(t)
	priv := testPrivKeyBytes(t)
	password := []byte("test-password")

	if err := ks.Put("addr1", priv, password, fastParams()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	loaded, err := ks.Get("addr1", password)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(loaded, priv) {
		t.Error("loaded private key does not match original")
	}
}

func TestKeystore_PutReplacesExisting(t *testing.T) {
	ks := testKeystore(t)
	priv1 := testPrivKeyBytes(t)
	priv2 := testPrivKeyBytes(t)
	password := []byte("pass")

	if err := ks.Put("addr1", priv1, password, fastParams()); err != nil {
		t.Fatalf("first Put() error: %v", err)
	}
	if err := ks.Put("addr1", priv2, password, fastParams()); err != nil {
		t.Fatalf("second Put() error: %v", err)
	}

	loaded, err := ks.Get("addr1", password)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(loaded, priv2) {
		t.Error("Put() should replace the existing entry for the same address")
	}

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("expected 1 address after replace, got %d", len(names))
	}
}

func TestKeystore_GetWrongPassword(t *testing.T) {
	ks := testKeystore(t)
	priv := testPrivKeyBytes(t)

	if err := ks.Put("addr1", priv, []byte("correct"), fastParams()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if _, err := ks.Get("addr1", []byte("wrong")); err == nil {
		t.Error("Get() with wrong password should fail")
	}
}

func TestKeystore_GetNonexistent(t *testing.T) {
	ks := testKeystore(t)

	if _, err := ks.Get("ghost", []byte("pass")); err == nil {
		t.Error("Get() for nonexistent address should fail")
	}
}

func TestKeystore_List(t *testing.T) {
	ks := testKeystore(t)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 addresses, got %d", len(names))
	}

	ks.Put("alpha", testPrivKeyBytes(t), []byte("p"), fastParams())
	ks.Put("beta", testPrivKeyBytes(t), []byte("p"), fastParams())

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 addresses, got %d", len(names))
	}
}

func TestKeystore_Has(t *testing.T) {
	ks := testKeystore(t)
	ks.Put("addr1", testPrivKeyBytes(t), []byte("p"), fastParams())

	ok, err := ks.Has("addr1")
	if err != nil || !ok {
		t.Fatalf("Has(addr1) = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = ks.Has("ghost")
	if err != nil || ok {
		t.Fatalf("Has(ghost) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestKeystore_Delete(t *testing.T) {
	ks := testKeystore(t)
	ks.Put("todelete", testPrivKeyBytes(t), []byte("p"), fastParams())

	if err := ks.Delete("todelete"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := ks.Get("todelete", []byte("p")); err == nil {
		t.Error("address should be deleted")
	}
}

func TestKeystore_DeleteNonexistentIsNoop(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Delete("ghost"); err != nil {
		t.Errorf("Delete() of nonexistent address should be a no-op, got error: %v", err)
	}
}

func TestKeystore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.dat")
	ks1, err := NewKeystore(path)
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	priv := testPrivKeyBytes(t)
	if err := ks1.Put("addr1", priv, []byte("p"), fastParams()); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	ks2, err := NewKeystore(path)
	if err != nil {
		t.Fatalf("reopen NewKeystore() error: %v", err)
	}
	loaded, err := ks2.Get("addr1", []byte("p"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(loaded, priv) {
		t.Error("private key did not survive reopen")
	}
}

func TestKeystore_MultipleAddressesRoundTrip(t *testing.T) {
	ks := testKeystore(t)
	want := map[string][]byte{
		"addr1": testPrivKeyBytes(t),
		"addr2": testPrivKeyBytes(t),
		"addr3": testPrivKeyBytes(t),
	}
	for addr, priv := range want {
		if err := ks.Put(addr, priv, []byte("p"), fastParams()); err != nil {
			t.Fatalf("Put(%s) error: %v", addr, err)
		}
	}

	for addr, priv := range want {
		got, err := ks.Get(addr, []byte("p"))
		if err != nil {
			t.Fatalf("Get(%s) error: %v", addr, err)
		}
		if !bytes.Equal(got, priv) {
			t.Errorf("Get(%s) mismatch", addr)
		}
	}
}

func TestKeystore_NoTmpFileLeftBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.dat")
	ks, _ := NewKeystore(path)
	ks.Put("addr1", testPrivKeyBytes(t), []byte("p"), fastParams())

	matches, err := filepath.Glob(path + ".tmp")
	if err != nil {
		t.Fatalf("Glob error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("temporary file left behind: %v", matches)
	}
}
