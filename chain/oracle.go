// Package chain defines the Chain Oracle: the read/broadcast surface the
// covenant tooling needs from a ledger node or indexer.
package chain

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/faults"
)

// Oracle is a minimal ledger query interface.
//
// Contract:
// - Every call honours ctx cancellation and deadlines.
// - RawTx MUST return ErrNotFound (wrapped) for an unknown txid.
// - SpendStatus reports the spending txid once any transaction (confirmed or
//   pending) consumes the outpoint.
// - Broadcast returns the txid the ledger assigned.
type Oracle interface {
	Height(ctx context.Context) (uint32, error)
	RawTx(ctx context.Context, txid chainhash.Hash) ([]byte, error)
	SpendStatus(ctx context.Context, outpoint wire.OutPoint) (SpendStatus, error)
	Unspent(ctx context.Context, address string) ([]Utxo, error)
	Broadcast(ctx context.Context, raw []byte) (chainhash.Hash, error)
}

// Utxo is an unspent output owned by an address.
type Utxo struct {
	OutPoint wire.OutPoint
	Value    int64
	// Height is the confirmation height, 0 while unconfirmed.
	Height uint32
}

// SpendStatus describes whether an outpoint has been consumed.
type SpendStatus struct {
	Spent   bool
	SpentBy chainhash.Hash // zero unless Spent
	Height  uint32         // confirmation height of the spend, 0 if pending
}

// FetchTx retrieves and decodes txid, checking that the returned bytes
// actually hash to it.
func FetchTx(ctx context.Context, o Oracle, txid chainhash.Hash) (*wire.MsgTx, error) {
	raw, err := o.RawTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	tx, err := DecodeTx(raw)
	if err != nil {
		return nil, err
	}
	if got := tx.TxHash(); got != txid {
		return nil, faults.New(faults.KindMalformed, "CHAIN-TX-102", fmt.Sprintf("oracle returned transaction %s for %s", got, txid))
	}
	return tx, nil
}

// DecodeTx parses a serialized transaction.
func DecodeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "CHAIN-TX-101", "decode transaction", err)
	}
	return tx, nil
}

// EncodeTx serializes tx.
func EncodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "CHAIN-TX-103", "encode transaction", err)
	}
	return buf.Bytes(), nil
}

// RequireUnspent fails with a precondition fault when outpoint is already
// spent. The fault is never retryable: a competing spend has won.
func RequireUnspent(ctx context.Context, o Oracle, outpoint wire.OutPoint) error {
	st, err := o.SpendStatus(ctx, outpoint)
	if err != nil {
		return err
	}
	if st.Spent {
		return faults.New(faults.KindPrecondition, "CHAIN-UTXO-201", fmt.Sprintf("already spent: %s spent by %s", outpoint, st.SpentBy))
	}
	return nil
}

// Broadcast serializes and submits tx, verifying the oracle reports the
// expected txid.
func Broadcast(ctx context.Context, o Oracle, tx *wire.MsgTx) (chainhash.Hash, error) {
	raw, err := EncodeTx(tx)
	if err != nil {
		return chainhash.Hash{}, err
	}
	txid, err := o.Broadcast(ctx, raw)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if want := tx.TxHash(); txid != want {
		return txid, faults.New(faults.KindMalformed, "CHAIN-TX-104", fmt.Sprintf("broadcast returned txid %s, expected %s", txid, want))
	}
	return txid, nil
}
