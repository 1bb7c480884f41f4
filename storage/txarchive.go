package storage

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/ipfs/go-cid"
)

// PutTx archives the serialized form of tx.
func PutTx(c CAS, tx *wire.MsgTx) (cid.Cid, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return cid.Undef, fmt.Errorf("storage: serialize %s: %w", tx.TxHash(), err)
	}
	return c.Put(buf.Bytes())
}

// GetTx loads and decodes an archived transaction.
func GetTx(c CAS, id cid.Cid) (*wire.MsgTx, error) {
	raw, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("storage: archived object %s is not a transaction: %w", id, err)
	}
	return tx, nil
}
