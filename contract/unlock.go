package contract

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"xdao.co/covenants/faults"
	"xdao.co/covenants/scriptutil"
)

// Unlock is the data a spender pushes to satisfy a covenant, in push order.
type Unlock struct {
	Signature    []byte // DER signature || sighash type
	Preimage     []byte // signature-hash preimage of the spending input
	Amount       int64  // payout the covenant must see committed
	Selector     int64  // spending path
	RedeemScript []byte // the predicate itself (pay-to-script-hash reveal)
}

// Script encodes u as a push-only unlocking script.
func (u Unlock) Script() ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(u.Signature).
		AddData(u.Preimage).
		AddInt64(u.Amount).
		AddInt64(u.Selector).
		AddData(u.RedeemScript).
		Script()
}

// DecodeUnlock parses an unlocking script produced by Unlock.Script.
func DecodeUnlock(sigScript []byte) (Unlock, error) {
	pushes, err := scriptutil.Pushes(sigScript)
	if err != nil {
		return Unlock{}, faults.Wrap(faults.KindMalformed, "COV-UNL-101", "unlocking script is not push-only", err)
	}
	if len(pushes) != 5 {
		return Unlock{}, faults.New(faults.KindMalformed, "COV-UNL-102", fmt.Sprintf("unlocking script has %d pushes, want 5", len(pushes)))
	}
	amount, err := scriptutil.ScriptNum(pushes[2])
	if err != nil {
		return Unlock{}, faults.Wrap(faults.KindMalformed, "COV-UNL-103", "invalid amount", err)
	}
	sel, err := scriptutil.ScriptNum(pushes[3])
	if err != nil {
		return Unlock{}, faults.Wrap(faults.KindMalformed, "COV-UNL-104", "invalid selector", err)
	}
	return Unlock{
		Signature:    pushes[0],
		Preimage:     pushes[1],
		Amount:       amount,
		Selector:     sel,
		RedeemScript: pushes[4],
	}, nil
}
