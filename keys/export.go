package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Info is the public description of a stored key.
type Info struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	PubKey  string `json:"pubkey"`
	Address string `json:"address"`
}

// Describe returns the compressed public key and pay-to-public-key-hash
// address of k on net.
func Describe(name, role string, k *btcec.PrivateKey, net *chaincfg.Params) (Info, error) {
	pub := k.PubKey().SerializeCompressed()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), net)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, Role: role, PubKey: hex.EncodeToString(pub), Address: addr.EncodeAddress()}, nil
}

// EncodeWIF exports k in wallet import format for net.
func EncodeWIF(k *btcec.PrivateKey, net *chaincfg.Params) (string, error) {
	w, err := btcutil.NewWIF(k, net, true)
	if err != nil {
		return "", err
	}
	return w.String(), nil
}

// ParsePubKey decodes a hex compressed or uncompressed public key.
func ParsePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}
