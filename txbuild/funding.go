package txbuild

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
)

// DustLimit is the smallest change output worth creating; anything below is
// left to the fee.
const DustLimit = 546

// WalletInput is a pay-to-public-key-hash output the wallet can spend.
type WalletInput struct {
	OutPoint wire.OutPoint
	Value    int64
	PkScript []byte
}

// WalletInputs converts oracle UTXOs of a single P2PKH address.
func WalletInputs(utxos []chain.Utxo, pkScript []byte) []WalletInput {
	out := make([]WalletInput, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, WalletInput{OutPoint: u.OutPoint, Value: u.Value, PkScript: pkScript})
	}
	return out
}

// Payment is an unsigned wallet transaction: funding a covenant or carrying data.
type Payment struct {
	Tx     *wire.MsgTx
	Inputs []WalletInput
	Fee    int64
	// Change is the change value, 0 when below DustLimit.
	Change int64
}

// NewFunding pays amount to payTo (normally contract.LockingScript) from
// inputs, selected in order until amount+fee is covered, returning change to
// changeTo.
func NewFunding(inputs []WalletInput, payTo []byte, amount, fee int64, changeTo [commit.HashSize]byte) (*Payment, error) {
	if amount <= 0 {
		return nil, faults.New(faults.KindPrecondition, "TXB-FUND-802", fmt.Sprintf("funding amount must be positive, got %d", amount))
	}
	return newPayment(inputs, wire.NewTxOut(amount, payTo), fee, changeTo)
}

// NewDataCarrier builds a transaction whose first output is a zero-value
// data output holding dataScript.
func NewDataCarrier(inputs []WalletInput, dataScript []byte, fee int64, changeTo [commit.HashSize]byte) (*Payment, error) {
	if len(dataScript) == 0 || dataScript[0] != txscript.OP_FALSE && dataScript[0] != txscript.OP_RETURN {
		return nil, faults.New(faults.KindMalformed, "TXB-DATA-901", "data script must be unspendable")
	}
	return newPayment(inputs, wire.NewTxOut(0, dataScript), fee, changeTo)
}

func newPayment(inputs []WalletInput, out *wire.TxOut, fee int64, changeTo [commit.HashSize]byte) (*Payment, error) {
	if fee < 0 {
		return nil, faults.New(faults.KindPrecondition, "TXB-FUND-802", fmt.Sprintf("fee must not be negative, got %d", fee))
	}
	need := out.Value + fee
	var (
		selected []WalletInput
		total    int64
	)
	for _, in := range inputs {
		if total >= need && len(selected) > 0 {
			break
		}
		if _, ok := commit.P2PKHHash(in.PkScript); !ok {
			return nil, faults.New(faults.KindPrecondition, "TXB-FUND-803", fmt.Sprintf("wallet input %s is not pay-to-public-key-hash", in.OutPoint))
		}
		selected = append(selected, in)
		total += in.Value
	}
	if total < need || len(selected) == 0 {
		return nil, faults.New(faults.KindPrecondition, "TXB-FUND-801", fmt.Sprintf("insufficient funds: have %d, need %d", total, need))
	}

	tx := wire.NewMsgTx(TxVersion)
	for _, in := range selected {
		op := in.OutPoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	tx.AddTxOut(out)
	p := &Payment{Tx: tx, Inputs: selected, Fee: total - out.Value}
	if change := total - need; change >= DustLimit {
		tx.AddTxOut(wire.NewTxOut(change, commit.P2PKHScript(changeTo)))
		p.Change = change
		p.Fee = fee
	}
	return p, nil
}

// Sign signs every input with priv. Each input must pay to priv's key hash.
func (p *Payment) Sign(priv *btcec.PrivateKey) error {
	pub := priv.PubKey()
	want := contract.PubKeyHash(pub)
	for i, in := range p.Inputs {
		h, _ := commit.P2PKHHash(in.PkScript)
		if h != want {
			return faults.New(faults.KindPrecondition, "TXB-ROLE-701", fmt.Sprintf("wallet key does not own input %d (%s)", i, in.OutPoint))
		}
		preimage, err := commit.Preimage(p.Tx, i, in.PkScript, in.Value)
		if err != nil {
			return faults.Wrap(faults.KindInternal, "TXB-FUND-804", "compute preimage", err)
		}
		script, err := txscript.NewScriptBuilder().
			AddData(TxSignature(priv, commit.SignatureHash(preimage))).
			AddData(pub.SerializeCompressed()).
			Script()
		if err != nil {
			return faults.Wrap(faults.KindInternal, "TXB-FUND-805", "build unlocking script", err)
		}
		p.Tx.TxIn[i].SignatureScript = script
	}
	return nil
}

// Raw serializes the transaction.
func (p *Payment) Raw() ([]byte, error) { return chain.EncodeTx(p.Tx) }

// VerifyP2PKH checks input idx of tx against a pay-to-public-key-hash
// previous output: the revealed key hashes to the output's hash and the
// signature verifies over the input's preimage.
func VerifyP2PKH(tx *wire.MsgTx, idx int, prev *wire.TxOut) error {
	want, ok := commit.P2PKHHash(prev.PkScript)
	if !ok {
		return faults.New(faults.KindMalformed, "TXB-P2PKH-101", "previous output is not pay-to-public-key-hash")
	}
	if idx < 0 || idx >= len(tx.TxIn) {
		return faults.New(faults.KindMalformed, "TXB-P2PKH-102", fmt.Sprintf("input index %d out of range", idx))
	}
	pub, sig, err := commit.P2PKHUnlock(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return faults.Wrap(faults.KindMalformed, "TXB-P2PKH-105", "invalid pay-to-public-key-hash unlock", err)
	}
	if got := contract.PubKeyHash(pub); !bytes.Equal(got[:], want[:]) {
		return faults.New(faults.KindPredicate, "TXB-P2PKH-103", "revealed key does not match the output's key hash")
	}
	preimage, err := commit.Preimage(tx, idx, prev.PkScript, prev.Value)
	if err != nil {
		return faults.Wrap(faults.KindInternal, "TXB-P2PKH-104", "compute preimage", err)
	}
	return contract.VerifySignature(sig, preimage, pub)
}
