package contract

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/scriptutil"
)

// Decode rebuilds a contract from its redeem script. Contracts keep no state
// outside these bytes, so this is the whole of state reconstruction.
func Decode(redeem []byte) (Contract, error) {
	switch {
	case bytes.HasSuffix(redeem, bondBodyBytes):
		return decodeBond(redeem)
	case bytes.HasSuffix(redeem, escrowBodyBytes):
		return decodeEscrow(redeem)
	default:
		return nil, faults.New(faults.KindMalformed, "COV-DEC-101", "script is not a known covenant")
	}
}

// DecodeBond is Decode restricted to bonds.
func DecodeBond(redeem []byte) (*Bond, error) {
	if !bytes.HasSuffix(redeem, bondBodyBytes) {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-101", "script is not a bond")
	}
	return decodeBond(redeem)
}

// DecodeEscrow is Decode restricted to escrows.
func DecodeEscrow(redeem []byte) (*Escrow, error) {
	if !bytes.HasSuffix(redeem, escrowBodyBytes) {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-101", "script is not an escrow")
	}
	return decodeEscrow(redeem)
}

// constructorPushes splits off body and requires the head to be exactly n pushes.
func constructorPushes(redeem, body []byte, n int) ([][]byte, error) {
	head := redeem[:len(redeem)-len(body)]
	pushes, rest, err := scriptutil.LeadingPushes(head, n)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "COV-DEC-102", "invalid constructor arguments", err)
	}
	if len(rest) != 0 {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-102", fmt.Sprintf("unexpected %d bytes between constructor arguments and body", len(rest)))
	}
	return pushes, nil
}

func pubKeyArg(name string, b []byte) (*btcec.PublicKey, error) {
	if len(b) != btcec.PubKeyBytesLenCompressed {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-103", fmt.Sprintf("%s key must be %d bytes, got %d", name, btcec.PubKeyBytesLenCompressed, len(b)))
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "COV-DEC-103", fmt.Sprintf("invalid %s key", name), err)
	}
	return pub, nil
}

func hashArg(name string, b []byte) ([commit.HashSize]byte, error) {
	var h [commit.HashSize]byte
	if len(b) != commit.HashSize {
		return h, faults.New(faults.KindMalformed, "COV-DEC-103", fmt.Sprintf("%s must be %d bytes, got %d", name, commit.HashSize, len(b)))
	}
	copy(h[:], b)
	return h, nil
}

func heightArg(name string, b []byte) (uint32, error) {
	n, err := scriptutil.ScriptNum(b)
	if err != nil {
		return 0, faults.Wrap(faults.KindMalformed, "COV-DEC-104", fmt.Sprintf("invalid %s", name), err)
	}
	if n <= 0 || n >= LockTimeThreshold {
		return 0, faults.New(faults.KindMalformed, "COV-DEC-104", fmt.Sprintf("%s must be a block height in (0, %d), got %d", name, LockTimeThreshold, n))
	}
	return uint32(n), nil
}
