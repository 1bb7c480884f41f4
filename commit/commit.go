// Package commit implements the output commitment model shared by every
// covenant: a canonical byte encoding of transaction outputs, the digest over
// that encoding, and the signature-hash preimage that carries it.
package commit

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/scriptutil"
)

// HashSize is the size of a public-key hash (hash160).
const HashSize = 20

// EncodeOutput returns the canonical encoding of one output:
// value as 8-byte little-endian || varint(len(pkScript)) || pkScript.
func EncodeOutput(value int64, pkScript []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(8 + wire.VarIntSerializeSize(uint64(len(pkScript))) + len(pkScript))
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], uint64(value))
	buf.Write(v[:])
	// bytes.Buffer writes do not fail.
	_ = wire.WriteVarBytes(&buf, 0, pkScript)
	return buf.Bytes()
}

// P2PKHScript returns the pay-to-public-key-hash locking script for hash.
func P2PKHScript(hash [HashSize]byte) []byte {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		// The builder only errors for oversized scripts; a fixed 25-byte
		// template cannot hit that limit.
		return nil
	}
	return script
}

// P2PKHHash extracts the destination hash from a pay-to-public-key-hash
// script. ok is false for any other script shape.
func P2PKHHash(pkScript []byte) (hash [HashSize]byte, ok bool) {
	if len(pkScript) != 25 ||
		pkScript[0] != txscript.OP_DUP ||
		pkScript[1] != txscript.OP_HASH160 ||
		pkScript[2] != txscript.OP_DATA_20 ||
		pkScript[23] != txscript.OP_EQUALVERIFY ||
		pkScript[24] != txscript.OP_CHECKSIG {
		return hash, false
	}
	copy(hash[:], pkScript[3:23])
	return hash, true
}

// P2PKHUnlock splits a pay-to-public-key-hash unlocking script
// (<sig> <pubkey>) into the revealed key and the signature.
func P2PKHUnlock(sigScript []byte) (*btcec.PublicKey, []byte, error) {
	pushes, err := scriptutil.Pushes(sigScript)
	if err != nil {
		return nil, nil, err
	}
	if len(pushes) != 2 {
		return nil, nil, fmt.Errorf("commit: expected <sig> <pubkey>, found %d pushes", len(pushes))
	}
	pub, err := btcec.ParsePubKey(pushes[1])
	if err != nil {
		return nil, nil, fmt.Errorf("commit: revealed public key: %w", err)
	}
	return pub, pushes[0], nil
}

// BuildDestinationOutput returns the canonical encoding of an output paying
// amount to the pay-to-public-key-hash destination destHash.
func BuildDestinationOutput(destHash [HashSize]byte, amount int64) []byte {
	return EncodeOutput(amount, P2PKHScript(destHash))
}

// Commit returns the commitment digest over an ordered sequence of canonical
// outputs: double SHA-256 of their concatenation.
func Commit(outputs ...[]byte) chainhash.Hash {
	var buf bytes.Buffer
	for _, o := range outputs {
		buf.Write(o)
	}
	return chainhash.DoubleHashH(buf.Bytes())
}

// EncodeOutputs returns the canonical encodings of every output of tx, in order.
func EncodeOutputs(tx *wire.MsgTx) [][]byte {
	out := make([][]byte, 0, len(tx.TxOut))
	for _, o := range tx.TxOut {
		out = append(out, EncodeOutput(o.Value, o.PkScript))
	}
	return out
}

// OutputsDigest returns the digest tx actually commits to.
func OutputsDigest(tx *wire.MsgTx) chainhash.Hash {
	return Commit(EncodeOutputs(tx)...)
}
