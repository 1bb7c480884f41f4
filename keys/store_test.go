package keys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

func TestKeyStoreLifecycle(t *testing.T) {
	ks, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	root, path, err := ks.Generate("alice", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("root key mode = %v, want 0600", info.Mode().Perm())
	}
	if _, _, err := ks.Generate("alice", false); err == nil {
		t.Fatalf("expected refusal to overwrite an existing key")
	}

	holder, rolePath, err := ks.Derive("alice", "holder", false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if rolePath != filepath.Join(ks.Directory, "alice", "roles", "holder.key") {
		t.Fatalf("unexpected role path %s", rolePath)
	}
	want, _ := DeriveRoleKey(root, "holder")
	if !bytes.Equal(holder.Serialize(), want.Serialize()) {
		t.Fatalf("stored role key differs from derivation")
	}

	loaded, err := ks.Load("alice", "holder")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.Serialize(), holder.Serialize()) {
		t.Fatalf("Load returned a different key")
	}

	if _, err := ks.Load("bob", ""); !errors.Is(err, ErrNoKey) {
		t.Fatalf("Load missing: got %v, want ErrNoKey", err)
	}
	if _, err := ks.Load("a/b", ""); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestExportAndList(t *testing.T) {
	ks, _ := Open(t.TempDir())
	if _, err := ks.Init("carol", rootKey(), false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, role := range []string{"worker", "requester"} {
		if _, _, err := ks.Derive("carol", role, false); err != nil {
			t.Fatalf("Derive %s: %v", role, err)
		}
	}
	if _, _, err := ks.Generate("bob", false); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	info, err := ks.Export("carol", "worker", &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(info.PubKey) != 66 {
		t.Fatalf("expected compressed hex pubkey, got %q", info.PubKey)
	}
	addr, err := btcutil.DecodeAddress(info.Address, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("address does not decode: %v", err)
	}
	if _, ok := addr.(*btcutil.AddressPubKeyHash); !ok {
		t.Fatalf("expected a pay-to-pubkey-hash address, got %T", addr)
	}

	entries, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "bob" || entries[1].Name != "carol" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if strings.Join(entries[1].Roles, ",") != "requester,worker" {
		t.Fatalf("unexpected roles %v", entries[1].Roles)
	}
}

func TestImportWIF(t *testing.T) {
	ks, _ := Open(t.TempDir())
	wif, err := EncodeWIF(rootKey(), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("EncodeWIF: %v", err)
	}

	if _, _, err := ks.ImportWIF("dave", wif, &chaincfg.MainNetParams, false); err == nil {
		t.Fatalf("expected network mismatch")
	}
	k, _, err := ks.ImportWIF("dave", wif, &chaincfg.RegressionNetParams, false)
	if err != nil {
		t.Fatalf("ImportWIF: %v", err)
	}
	if !bytes.Equal(k.Serialize(), rootKey().Serialize()) {
		t.Fatalf("imported key differs")
	}
	if _, _, err := ks.ImportWIF("erin", "not-a-wif", &chaincfg.RegressionNetParams, false); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseSecretHex(t *testing.T) {
	hexKey := "0x" + strings.Repeat("11", SecretSize) + "\n"
	if _, err := ParseSecretHex(hexKey); err != nil {
		t.Fatalf("ParseSecretHex: %v", err)
	}
	for _, bad := range []string{"zz", strings.Repeat("11", 31), strings.Repeat("00", SecretSize)} {
		if _, err := ParseSecretHex(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
