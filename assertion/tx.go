package assertion

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
)

// Assertion is a record located in a transaction, with the signer key taken
// from that transaction.
type Assertion struct {
	Record
	Txid   chainhash.Hash
	Vout   uint32
	Signer *btcec.PublicKey
}

// Valid reports whether the record is signed by the transaction's signer.
func (a *Assertion) Valid() bool { return a != nil && a.Verify(a.Signer) }

// FromTx locates the first data output of tx, decodes it, and recovers the
// signer key from the first pay-to-public-key-hash input.
//
// Key recovery assumes the asserter funded the transaction from a P2PKH
// output, whose unlocking script reveals the key. Any other funding shape
// yields ASSERT-TX-202.
func FromTx(tx *wire.MsgTx) (*Assertion, error) {
	if tx == nil {
		return nil, faults.New(faults.KindMalformed, "ASSERT-TX-200", "nil transaction")
	}
	idx := -1
	for i, out := range tx.TxOut {
		if IsDataScript(out.PkScript) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, faults.New(faults.KindMalformed, "ASSERT-TX-201", "transaction has no data output")
	}
	rec, err := DecodeScript(tx.TxOut[idx].PkScript)
	if err != nil {
		return nil, err
	}
	signer, err := SignerKey(tx)
	if err != nil {
		return nil, err
	}
	return &Assertion{Record: *rec, Txid: tx.TxHash(), Vout: uint32(idx), Signer: signer}, nil
}

// SignerKey returns the key revealed by the first P2PKH-shaped input of tx.
func SignerKey(tx *wire.MsgTx) (*btcec.PublicKey, error) {
	for _, in := range tx.TxIn {
		pub, _, err := commit.P2PKHUnlock(in.SignatureScript)
		if err == nil {
			return pub, nil
		}
	}
	return nil, faults.New(faults.KindMalformed, "ASSERT-TX-202", "no pay-to-public-key-hash input reveals a signer key")
}
