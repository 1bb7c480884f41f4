package keys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

const deriveSalt = "xdao-covenants-role-v1"

// SecretSize is the length of a serialized private key.
const SecretSize = 32

// DeriveRoleKey deterministically derives the key for role from root.
//
// The candidate secret is HKDF-SHA256(root, salt, "role:"+role+counter). The
// counter starts at zero and only advances in the negligible case that the
// candidate is not a valid scalar.
func DeriveRoleKey(root *btcec.PrivateKey, role string) (*btcec.PrivateKey, error) {
	if root == nil {
		return nil, fmt.Errorf("keys: missing root key")
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	secret := root.Serialize()
	for counter := byte(0); counter < 0xff; counter++ {
		info := append([]byte("role:"+role), counter)
		r := hkdf.New(sha256.New, secret, []byte(deriveSalt), info)
		buf := make([]byte, SecretSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("keys: derive %s: %w", role, err)
		}
		if k, ok := privateKey(buf); ok {
			return k, nil
		}
	}
	return nil, fmt.Errorf("keys: no valid key for role %q", role)
}

// privateKey accepts b only if it is a canonical non-zero scalar.
func privateKey(b []byte) (*btcec.PrivateKey, bool) {
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		return nil, false
	}
	return btcec.PrivKeyFromScalar(&s), true
}
