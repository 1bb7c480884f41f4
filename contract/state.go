package contract

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/faults"
)

// State is the lifecycle position of a covenant UTXO. Every state other than
// StateOpen is terminal and means the UTXO is spent.
type State string

const (
	StateOpen     State = "open"
	StateReleased State = "released"
	StateSlashed  State = "slashed"
	StateApproved State = "approved"
	StateRefunded State = "refunded"
	StateTimedOut State = "timed_out"

	// StateSpent is a spend whose unlocking data could not be attributed to
	// a known operation.
	StateSpent State = "spent"
)

// Terminal reports whether s is a spent state.
func (s State) Terminal() bool { return s != StateOpen && s != "" }

// StateAfter returns the terminal state op leads to.
func StateAfter(op Operation) (State, error) {
	switch op {
	case OpRelease:
		return StateReleased, nil
	case OpSlash:
		return StateSlashed, nil
	case OpApprove:
		return StateApproved, nil
	case OpRefund:
		return StateRefunded, nil
	case OpTimeout:
		return StateTimedOut, nil
	default:
		return "", faults.New(faults.KindMalformed, "COV-OP-001", fmt.Sprintf("unknown operation %q", op))
	}
}

// StateFromSpend classifies the input of tx that consumes outpoint by the
// selector it reveals. It reads the unlocking data only; it does not
// re-evaluate the predicate (a confirmed spend already passed it).
func StateFromSpend(tx *wire.MsgTx, outpoint wire.OutPoint) (State, Operation, error) {
	if tx == nil {
		return "", "", faults.New(faults.KindMalformed, "COV-SPEND-101", "nil spending transaction")
	}
	for _, in := range tx.TxIn {
		if in.PreviousOutPoint != outpoint {
			continue
		}
		u, err := DecodeUnlock(in.SignatureScript)
		if err != nil {
			return StateSpent, "", nil
		}
		c, err := Decode(u.RedeemScript)
		if err != nil {
			return StateSpent, "", nil
		}
		op, err := OperationForSelector(c, u.Selector)
		if err != nil {
			return StateSpent, "", nil
		}
		st, err := StateAfter(op)
		if err != nil {
			return "", "", err
		}
		return st, op, nil
	}
	return "", "", faults.New(faults.KindMalformed, "COV-SPEND-103", fmt.Sprintf("transaction %s does not spend %s", tx.TxHash(), outpoint))
}
