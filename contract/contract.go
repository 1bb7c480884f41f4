// Package contract implements the Bond and Escrow covenants: their locking
// predicates (redeem scripts), decoders that rebuild typed state from those
// bytes, the unlocking data format, and a local evaluator that applies the
// predicate's checks before anything is broadcast.
package contract

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
)

// Kind names a contract type.
type Kind string

const (
	KindBond   Kind = "bond"
	KindEscrow Kind = "escrow"
)

// Operation names a spending path. The set per Kind is fixed; see Operations.
type Operation string

const (
	OpRelease Operation = "release"
	OpSlash   Operation = "slash"

	OpApprove Operation = "approve"
	OpRefund  Operation = "refund"
	OpTimeout Operation = "timeout"
)

// LockTimeThreshold separates block-height lock times from timestamps.
const LockTimeThreshold = 500_000_000

// Contract is a decoded covenant instance.
type Contract interface {
	Kind() Kind
	// RedeemScript returns the locking predicate bytes. They are the only
	// state a contract has.
	RedeemScript() []byte
	// Operations lists spending paths in selector order.
	Operations() []Operation
	// Signer returns the key whose signature the operation requires.
	Signer(op Operation) (*btcec.PublicKey, error)
	// Recipient returns the pay-to-public-key-hash destination the operation must pay.
	Recipient(op Operation) ([commit.HashSize]byte, error)
	// Threshold returns the minimum lock-time height for the operation, or 0
	// when the operation is not time gated.
	Threshold(op Operation) uint32
}

// Selector returns the script selector index for op.
func Selector(c Contract, op Operation) (int64, error) {
	for i, o := range c.Operations() {
		if o == op {
			return int64(i), nil
		}
	}
	return 0, unknownOp(c.Kind(), op)
}

// OperationForSelector is the inverse of Selector.
func OperationForSelector(c Contract, sel int64) (Operation, error) {
	ops := c.Operations()
	if sel < 0 || sel >= int64(len(ops)) {
		return "", faults.New(faults.KindPredicate, "COV-OP-002", fmt.Sprintf("selector %d not defined for %s", sel, c.Kind()))
	}
	return ops[sel], nil
}

// KindOperations lists the operations of kind in selector order, or nil for
// an unknown kind.
func KindOperations(kind Kind) []Operation {
	switch kind {
	case KindBond:
		return bondOps
	case KindEscrow:
		return escrowOps
	default:
		return nil
	}
}

// ParseOperation validates op against the operations of kind.
func ParseOperation(kind Kind, op string) (Operation, error) {
	ops := KindOperations(kind)
	if ops == nil {
		return "", faults.New(faults.KindMalformed, "COV-OP-003", fmt.Sprintf("unknown contract kind %q", kind))
	}
	for _, o := range ops {
		if string(o) == op {
			return o, nil
		}
	}
	return "", unknownOp(kind, Operation(op))
}

// ScriptHash returns hash160 of the redeem script.
func ScriptHash(c Contract) [commit.HashSize]byte {
	var h [commit.HashSize]byte
	copy(h[:], btcutil.Hash160(c.RedeemScript()))
	return h
}

// LockingScript returns the pay-to-script-hash output script that locks
// value to c.
func LockingScript(c Contract) []byte {
	h := ScriptHash(c)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(h[:]).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		return nil
	}
	return script
}

// Address returns the pay-to-script-hash address of c on net.
func Address(c Contract, net *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressScriptHash(c.RedeemScript(), net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// PubKeyHash returns hash160 of the compressed serialization of pub.
func PubKeyHash(pub *btcec.PublicKey) [commit.HashSize]byte {
	var h [commit.HashSize]byte
	copy(h[:], btcutil.Hash160(pub.SerializeCompressed()))
	return h
}

func checkHeight(field string, h uint32) error {
	if h == 0 || h >= LockTimeThreshold {
		return faults.New(faults.KindMalformed, "COV-DEC-104", fmt.Sprintf("%s must be a block height in (0, %d), got %d", field, LockTimeThreshold, h))
	}
	return nil
}

func unknownOp(kind Kind, op Operation) error {
	return faults.New(faults.KindPredicate, "COV-OP-001", fmt.Sprintf("operation %q not defined for %s", op, kind))
}
