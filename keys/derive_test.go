package keys

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func rootKey() *btcec.PrivateKey {
	b := make([]byte, SecretSize)
	for i := range b {
		b[i] = byte(i + 1)
	}
	k, _ := btcec.PrivKeyFromBytes(b)
	return k
}

func TestDeriveRoleKeyDeterministic(t *testing.T) {
	a, err := DeriveRoleKey(rootKey(), "holder")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	b, err := DeriveRoleKey(rootKey(), "holder")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	if !bytes.Equal(a.Serialize(), b.Serialize()) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleKey(rootKey(), "slasher")
	if err != nil {
		t.Fatalf("DeriveRoleKey: %v", err)
	}
	if bytes.Equal(a.Serialize(), c.Serialize()) {
		t.Fatalf("expected different roles to derive different keys")
	}
	if bytes.Equal(a.Serialize(), rootKey().Serialize()) {
		t.Fatalf("role key must differ from the root key")
	}
}

func TestDeriveRoleKeyRejectsBadInput(t *testing.T) {
	if _, err := DeriveRoleKey(nil, "holder"); err == nil {
		t.Fatalf("expected error for nil root")
	}
	if _, err := DeriveRoleKey(rootKey(), "../holder"); err == nil {
		t.Fatalf("expected error for path-like role")
	}
}

func TestPrivateKeyRejectsOutOfRange(t *testing.T) {
	if _, ok := privateKey(make([]byte, SecretSize)); ok {
		t.Fatalf("zero scalar accepted")
	}
	if _, ok := privateKey(bytes.Repeat([]byte{0xff}, SecretSize)); ok {
		t.Fatalf("scalar above the group order accepted")
	}
}
