// Package txbuild constructs transactions that satisfy covenant predicates by
// construction: covenant spends (one input, one committed payout), funding
// transactions that lock value to a covenant, and data-carrier transactions.
package txbuild

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
)

// TxVersion is the version of every transaction built here. Version 2 keeps
// lock-time and sequence semantics unambiguous.
const TxVersion = 2

// GatedSequence enables lock-time enforcement on an input without opting into
// relative lock times.
const GatedSequence = wire.MaxTxInSequenceNum - 1

// SpendParams are the caller-chosen fields of a covenant spend.
type SpendParams struct {
	// Amount is the payout. When zero, the payout is the contract value less Fee.
	Amount int64
	Fee    int64
	// LockTime is the transaction lock time. Time-gated operations require a
	// block height at or above the contract threshold; callers normally pass
	// the current chain height.
	LockTime uint32
	// Sequence overrides the input sequence. Nil selects GatedSequence.
	Sequence *uint32
}

// Spend is an unsigned (or signed) covenant spend.
type Spend struct {
	Contract   contract.Contract
	Operation  contract.Operation
	Tx         *wire.MsgTx
	PrevOut    *wire.TxOut
	Amount     int64
	Fee        int64
	Preimage   []byte
	SigHash    []byte
	Commitment chainhash.Hash
	// Role is the key whose signature the operation requires.
	Role *btcec.PublicKey
}

// NewSpend builds the spend of funding's output vout through op.
//
// The output must be locked to c's script hash; that is the check that a
// persisted contract description still matches the on-ledger predicate.
func NewSpend(c contract.Contract, funding *wire.MsgTx, vout uint32, op contract.Operation, p SpendParams) (*Spend, error) {
	if c == nil || funding == nil {
		return nil, faults.New(faults.KindMalformed, "TXB-SPEND-101", "missing contract or funding transaction")
	}
	if _, err := contract.Selector(c, op); err != nil {
		return nil, err
	}
	if int(vout) >= len(funding.TxOut) {
		return nil, faults.New(faults.KindMalformed, "TXB-SPEND-102", fmt.Sprintf("funding transaction has no output %d", vout))
	}
	prev := funding.TxOut[vout]
	if !bytes.Equal(prev.PkScript, contract.LockingScript(c)) {
		return nil, faults.New(faults.KindPrecondition, "TXB-SPEND-103", fmt.Sprintf("output %s:%d is not locked to this %s", funding.TxHash(), vout, c.Kind()))
	}

	amount := p.Amount
	if amount == 0 {
		amount = prev.Value - p.Fee
	}
	if amount <= 0 || amount > prev.Value {
		return nil, faults.New(faults.KindPredicate, "COV-AMT-501", fmt.Sprintf("amount %d outside (0, %d]", amount, prev.Value))
	}

	if th := c.Threshold(op); th > 0 {
		if p.LockTime >= contract.LockTimeThreshold {
			return nil, faults.New(faults.KindPredicate, "COV-TIME-403", fmt.Sprintf("lock time %d is not a block height", p.LockTime))
		}
		if p.LockTime < th {
			return nil, faults.New(faults.KindPrecondition, "COV-TIME-401", fmt.Sprintf("still locked until height %d (lock time %d)", th, p.LockTime))
		}
	}

	recipient, err := c.Recipient(op)
	if err != nil {
		return nil, err
	}
	role, err := c.Signer(op)
	if err != nil {
		return nil, err
	}

	seq := uint32(GatedSequence)
	if p.Sequence != nil {
		seq = *p.Sequence
	}

	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = p.LockTime
	in := wire.NewTxIn(wire.NewOutPoint(ptrHash(funding.TxHash()), vout), nil, nil)
	in.Sequence = seq
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(amount, commit.P2PKHScript(recipient)))

	preimage, err := commit.Preimage(tx, 0, c.RedeemScript(), prev.Value)
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "TXB-SPEND-104", "compute preimage", err)
	}
	return &Spend{
		Contract:   c,
		Operation:  op,
		Tx:         tx,
		PrevOut:    prev,
		Amount:     amount,
		Fee:        prev.Value - amount,
		Preimage:   preimage,
		SigHash:    commit.SignatureHash(preimage),
		Commitment: commit.Commit(commit.BuildDestinationOutput(recipient, amount)),
		Role:       role,
	}, nil
}

// Sign signs the spend with priv, which must be the operation's role key,
// attaches the unlocking script and evaluates the predicate locally.
func (s *Spend) Sign(priv *btcec.PrivateKey) error {
	if priv == nil || !priv.PubKey().IsEqual(s.Role) {
		return faults.New(faults.KindPrecondition, "TXB-ROLE-701", fmt.Sprintf("wallet key does not match the %s role of %s", s.Operation, s.Contract.Kind()))
	}
	return s.Attach(TxSignature(priv, s.SigHash))
}

// Attach installs sig (DER || hashtype) as the spend's signature and evaluates
// the predicate. On failure the input is left unsigned.
func (s *Spend) Attach(sig []byte) error {
	selector, err := contract.Selector(s.Contract, s.Operation)
	if err != nil {
		return err
	}
	script, err := contract.Unlock{
		Signature:    sig,
		Preimage:     s.Preimage,
		Amount:       s.Amount,
		Selector:     selector,
		RedeemScript: s.Contract.RedeemScript(),
	}.Script()
	if err != nil {
		return faults.Wrap(faults.KindInternal, "TXB-SPEND-105", "build unlocking script", err)
	}
	s.Tx.TxIn[0].SignatureScript = script
	if _, err := contract.Evaluate(s.Contract, s.spend()); err != nil {
		s.Tx.TxIn[0].SignatureScript = nil
		return err
	}
	return nil
}

// Signed reports whether an unlocking script is attached.
func (s *Spend) Signed() bool { return len(s.Tx.TxIn[0].SignatureScript) > 0 }

// Raw serializes the transaction.
func (s *Spend) Raw() ([]byte, error) { return chain.EncodeTx(s.Tx) }

// Txid is the hash of the transaction as currently built.
func (s *Spend) Txid() chainhash.Hash { return s.Tx.TxHash() }

func (s *Spend) spend() contract.Spend {
	return contract.Spend{Tx: s.Tx, InputIndex: 0, PrevOut: s.PrevOut}
}

// TxSignature returns a low-S DER signature over sigHash followed by the
// SIGHASH_ALL|FORKID type byte.
func TxSignature(priv *btcec.PrivateKey, sigHash []byte) []byte {
	return append(ecdsa.Sign(priv, sigHash).Serialize(), commit.SigHashAllForkID)
}

func ptrHash(h chainhash.Hash) *chainhash.Hash { return &h }
