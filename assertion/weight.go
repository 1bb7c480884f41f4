package assertion

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/deploy"
	"xdao.co/covenants/faults"
)

// DefaultBondVout is the output index a bond is taken to be funded at when no
// deployment record says otherwise. ASSERT1 records carry only the bond txid.
const DefaultBondVout = 0

// StateNotBond is the outcome for an output that is not locked by a bond.
// Such an output never backs an assertion.
const StateNotBond contract.State = "not_bond"

// Bonds finds the deployment records of a funding transaction, in output
// order. *deploy.Store implements it.
type Bonds interface {
	ByTxid(ctx context.Context, txid chainhash.Hash) ([]*deploy.Record, error)
}

var _ Bonds = (*deploy.Store)(nil)

// Weight is the live backing of an assertion. It is a snapshot: callers
// resolve it again for every query.
type Weight struct {
	Backed bool
	// Vout is the output the weight was read from.
	Vout uint32
	// Value is the bond output's value, whether or not it is still unspent.
	Value   int64
	SpentBy chainhash.Hash
	// Outcome is StateOpen while backed, StateNotBond for an output that is
	// not a bond, and otherwise the state the spend moved the bond to
	// (released, slashed) or StateSpent if it cannot be read.
	Outcome contract.State
}

// Effective is the assertion's credibility: the bond value while backed, else 0.
func (w Weight) Effective() int64 {
	if !w.Backed {
		return 0
	}
	return w.Value
}

// ResolveWeight queries o for the bond output bondTxid:vout.
//
// Only a pay-to-script-hash output can hold a bond, and once it is spent the
// redeem script the spender revealed must decode as one. The ledger alone
// cannot tell an unspent P2SH bond from another script; Resolve with a Bonds
// source also checks the output against its deployment record.
func ResolveWeight(ctx context.Context, o chain.Oracle, bondTxid chainhash.Hash, vout uint32) (Weight, error) {
	bond, err := chain.FetchTx(ctx, o, bondTxid)
	if err != nil {
		return Weight{}, err
	}
	return weightOf(ctx, o, bond, bondTxid, vout, nil)
}

// Resolve is ResolveWeight for the bond a's record references. When bonds
// holds a bond record for that transaction, its output index is used and the
// output must match the record; otherwise the bond is output DefaultBondVout.
// bonds may be nil.
func Resolve(ctx context.Context, o chain.Oracle, bonds Bonds, a *Assertion) (Weight, error) {
	bond, err := chain.FetchTx(ctx, o, a.BondTxid)
	if err != nil {
		return Weight{}, err
	}
	var rec *deploy.Record
	if bonds != nil {
		recs, err := bonds.ByTxid(ctx, a.BondTxid)
		if err != nil {
			return Weight{}, err
		}
		rec = bondRecord(recs)
	}
	vout := uint32(DefaultBondVout)
	if rec != nil {
		vout = rec.Vout
	}
	return weightOf(ctx, o, bond, a.BondTxid, vout, rec)
}

// bondRecord picks the first bond among recs, or else the record at
// DefaultBondVout so that a known non-bond output there is reported as such.
func bondRecord(recs []*deploy.Record) *deploy.Record {
	var fallback *deploy.Record
	for _, r := range recs {
		if r.Kind == contract.KindBond {
			return r
		}
		if r.Vout == DefaultBondVout {
			fallback = r
		}
	}
	return fallback
}

func weightOf(ctx context.Context, o chain.Oracle, bond *wire.MsgTx, bondTxid chainhash.Hash, vout uint32, rec *deploy.Record) (Weight, error) {
	if int(vout) >= len(bond.TxOut) {
		return Weight{}, faults.New(faults.KindMalformed, "ASSERT-W-301", fmt.Sprintf("bond %s has no output %d", bondTxid, vout))
	}
	out := bond.TxOut[vout]
	w := Weight{Vout: vout, Value: out.Value}
	if !txscript.IsPayToScriptHash(out.PkScript) {
		w.Outcome = StateNotBond
		return w, nil
	}
	if rec != nil && (rec.Kind != contract.KindBond || !rec.MatchesOutput(out)) {
		w.Outcome = StateNotBond
		return w, nil
	}

	outpoint := wire.OutPoint{Hash: bondTxid, Index: vout}
	st, err := o.SpendStatus(ctx, outpoint)
	if err != nil {
		return Weight{}, err
	}
	if !st.Spent {
		w.Backed = true
		w.Outcome = contract.StateOpen
		return w, nil
	}
	w.SpentBy = st.SpentBy
	w.Outcome = contract.StateSpent
	spender, err := chain.FetchTx(ctx, o, st.SpentBy)
	if err != nil {
		// The spend is authoritative even if its body is unavailable.
		return w, nil
	}
	if c, err := revealed(spender, outpoint); err == nil && c.Kind() != contract.KindBond {
		w.Outcome = StateNotBond
		return w, nil
	}
	if state, _, err := contract.StateFromSpend(spender, outpoint); err == nil {
		w.Outcome = state
	}
	return w, nil
}

// revealed decodes the covenant the input of tx spending outpoint reveals.
func revealed(tx *wire.MsgTx, outpoint wire.OutPoint) (contract.Contract, error) {
	for _, in := range tx.TxIn {
		if in.PreviousOutPoint != outpoint {
			continue
		}
		u, err := contract.DecodeUnlock(in.SignatureScript)
		if err != nil {
			return nil, err
		}
		return contract.Decode(u.RedeemScript)
	}
	return nil, faults.New(faults.KindMalformed, "COV-SPEND-102", fmt.Sprintf("no input spends %s", outpoint))
}
