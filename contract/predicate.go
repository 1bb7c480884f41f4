package contract

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
)

// Spend identifies one covenant input of a transaction together with the
// output it consumes.
type Spend struct {
	Tx         *wire.MsgTx
	InputIndex int
	PrevOut    *wire.TxOut
}

func (s Spend) input() (*wire.TxIn, error) {
	if s.Tx == nil || s.PrevOut == nil {
		return nil, faults.New(faults.KindMalformed, "COV-SPEND-101", "spend is missing its transaction or previous output")
	}
	if s.InputIndex < 0 || s.InputIndex >= len(s.Tx.TxIn) {
		return nil, faults.New(faults.KindMalformed, "COV-SPEND-102", fmt.Sprintf("input index %d out of range (%d inputs)", s.InputIndex, len(s.Tx.TxIn)))
	}
	return s.Tx.TxIn[s.InputIndex], nil
}

// EvaluateInput decodes the covenant revealed by the spending input and
// evaluates it.
func EvaluateInput(s Spend) (Contract, Operation, error) {
	in, err := s.input()
	if err != nil {
		return nil, "", err
	}
	u, err := DecodeUnlock(in.SignatureScript)
	if err != nil {
		return nil, "", err
	}
	c, err := Decode(u.RedeemScript)
	if err != nil {
		return nil, "", err
	}
	op, err := Evaluate(c, s)
	if err != nil {
		return c, "", err
	}
	return c, op, nil
}

// Evaluate applies the checks c's predicate performs on the ledger to the
// spending input, in the same order, and returns the operation taken. A nil
// error means the spend would be accepted by the predicate.
func Evaluate(c Contract, s Spend) (Operation, error) {
	in, err := s.input()
	if err != nil {
		return "", err
	}
	u, err := DecodeUnlock(in.SignatureScript)
	if err != nil {
		return "", err
	}

	op, err := OperationForSelector(c, u.Selector)
	if err != nil {
		return "", err
	}

	redeem := c.RedeemScript()
	if !bytes.Equal(u.RedeemScript, redeem) {
		return op, faults.New(faults.KindPredicate, "COV-SCRIPT-101", "revealed redeem script does not match the contract")
	}
	if !bytes.Equal(s.PrevOut.PkScript, LockingScript(c)) {
		return op, faults.New(faults.KindPredicate, "COV-SCRIPT-101", "spent output is not locked to the contract's script hash")
	}

	preimage, err := commit.Preimage(s.Tx, s.InputIndex, redeem, s.PrevOut.Value)
	if err != nil {
		return op, faults.Wrap(faults.KindInternal, "COV-PRE-201", "compute preimage", err)
	}
	if !bytes.Equal(u.Preimage, preimage) {
		return op, faults.New(faults.KindPredicate, "COV-PRE-201", "supplied preimage does not match the spending transaction")
	}

	signer, err := c.Signer(op)
	if err != nil {
		return op, err
	}
	if err := VerifySignature(u.Signature, preimage, signer); err != nil {
		return op, err
	}

	if err := checkTimeGate(c.Threshold(op), preimage); err != nil {
		return op, err
	}

	value, _ := commit.PreimageValue(preimage)
	if u.Amount <= 0 || u.Amount > value {
		return op, faults.New(faults.KindPredicate, "COV-AMT-501", fmt.Sprintf("amount %d outside (0, %d]", u.Amount, value))
	}

	recipient, err := c.Recipient(op)
	if err != nil {
		return op, err
	}
	want := commit.Commit(commit.BuildDestinationOutput(recipient, u.Amount))
	got, _ := commit.PreimageOutputsDigest(preimage)
	if want != got {
		return op, faults.New(faults.KindPredicate, "COV-OUT-601", fmt.Sprintf("outputs digest %s does not commit to %d sats for %s", got, u.Amount, op))
	}
	return op, nil
}

// VerifySignature checks a transaction signature (DER || hashtype) over
// preimage against pub. Only low-S, strictly encoded SIGHASH_ALL|FORKID
// signatures are accepted.
func VerifySignature(sig, preimage []byte, pub *btcec.PublicKey) error {
	if len(sig) < 2 || sig[len(sig)-1] != commit.SigHashAllForkID {
		return faults.New(faults.KindPredicate, "COV-SIG-301", "signature hash type must be SIGHASH_ALL|FORKID")
	}
	der := sig[:len(sig)-1]
	parsed, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return faults.Wrap(faults.KindPredicate, "COV-SIG-302", "signature is not strict DER", err)
	}
	// Serialize canonicalises S; a mismatch means high-S or padding.
	if !bytes.Equal(parsed.Serialize(), der) {
		return faults.New(faults.KindPredicate, "COV-SIG-302", "signature is not canonical low-S DER")
	}
	if !parsed.Verify(commit.SignatureHash(preimage), pub) {
		return faults.New(faults.KindPredicate, "COV-SIG-303", "signature does not verify against the required key")
	}
	return nil
}

func checkTimeGate(threshold uint32, preimage []byte) error {
	if threshold == 0 {
		return nil
	}
	lockTime, _ := commit.PreimageLockTime(preimage)
	if lockTime >= LockTimeThreshold {
		return faults.New(faults.KindPredicate, "COV-TIME-403", fmt.Sprintf("lock time %d is a timestamp, threshold %d is a height", lockTime, threshold))
	}
	if lockTime < threshold {
		return faults.New(faults.KindPrecondition, "COV-TIME-401", fmt.Sprintf("still locked: lock time %d below %d", lockTime, threshold))
	}
	seq, _ := commit.PreimageSequence(preimage)
	if seq == wire.MaxTxInSequenceNum {
		return faults.New(faults.KindPredicate, "COV-TIME-402", "input sequence disables lock-time enforcement")
	}
	return nil
}
