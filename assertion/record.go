// Package assertion implements ASSERT1: a signed claim that references a
// bond, carried in a zero-value data output, whose weight is the referenced
// bond's value for as long as the bond stays unspent.
package assertion

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"xdao.co/covenants/faults"
	"xdao.co/covenants/scriptutil"
)

const (
	Tag     = "ASSERT1"
	Version = 1
)

// Record is the content of an ASSERT1 output.
type Record struct {
	BondTxid  chainhash.Hash
	Topic     string
	Claim     string
	Signature []byte // DER, no hash type
}

// Digest is SHA-256(bondTxid || topic || claim), with bondTxid in internal
// (little-endian) byte order, the same bytes the record carries.
func Digest(bondTxid chainhash.Hash, topic, claim string) []byte {
	buf := make([]byte, 0, chainhash.HashSize+len(topic)+len(claim))
	buf = append(buf, bondTxid[:]...)
	buf = append(buf, topic...)
	buf = append(buf, claim...)
	return chainhash.HashB(buf)
}

// Sign creates a record signed by priv.
func Sign(bondTxid chainhash.Hash, topic, claim string, priv *btcec.PrivateKey) (*Record, error) {
	if priv == nil {
		return nil, faults.New(faults.KindPrecondition, "ASSERT-ENC-001", "missing signing key")
	}
	if !utf8.ValidString(topic) || !utf8.ValidString(claim) {
		return nil, faults.New(faults.KindMalformed, "ASSERT-ENC-002", "topic and claim must be UTF-8")
	}
	sig := ecdsa.Sign(priv, Digest(bondTxid, topic, claim))
	return &Record{BondTxid: bondTxid, Topic: topic, Claim: claim, Signature: sig.Serialize()}, nil
}

// Digest is the digest r's signature covers.
func (r *Record) Digest() []byte { return Digest(r.BondTxid, r.Topic, r.Claim) }

// Verify reports whether r is signed by pub. Any failure, including an
// unparsable signature, is reported as false.
func (r *Record) Verify(pub *btcec.PublicKey) bool {
	if r == nil || pub == nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(r.Signature)
	if err != nil {
		return false
	}
	return sig.Verify(r.Digest(), pub)
}

// Script encodes r as an unspendable output script:
//
//	OP_FALSE OP_RETURN "ASSERT1" 0x01 <txid> <topic> <claim> <sig>
//
// Topic and claim are unbounded. Their pushes may exceed the script element
// limit, and a one-byte value is written as data rather than as a
// small-integer opcode, so DecodeScript returns exactly what was signed.
func (r *Record) Script() ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_FALSE).
		AddOp(txscript.OP_RETURN).
		AddData([]byte(Tag)).
		AddData([]byte{Version}).
		AddData(r.BondTxid[:]).
		Script()
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "ASSERT-ENC-003", "encode record", err)
	}
	script = scriptutil.AppendPush(script, []byte(r.Topic))
	script = scriptutil.AppendPush(script, []byte(r.Claim))
	return scriptutil.AppendPush(script, r.Signature), nil
}

// IsDataScript reports whether script starts with the OP_FALSE OP_RETURN
// marker pair.
func IsDataScript(script []byte) bool {
	return len(script) >= 2 && script[0] == txscript.OP_FALSE && script[1] == txscript.OP_RETURN
}

// DecodeScript parses an ASSERT1 output script.
func DecodeScript(script []byte) (*Record, error) {
	if !IsDataScript(script) {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-101", "not an OP_FALSE OP_RETURN data output")
	}
	pushes, err := scriptutil.Pushes(script[2:])
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "ASSERT-DEC-102", "data output is not push-only", err)
	}
	if len(pushes) < 5 {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-103", fmt.Sprintf("record has %d pushes, want at least 5", len(pushes)))
	}
	if !bytes.Equal(pushes[0], []byte(Tag)) {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-104", fmt.Sprintf("tag %q is not %s", pushes[0], Tag))
	}
	if len(pushes[1]) != 1 || pushes[1][0] != Version {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-105", fmt.Sprintf("unsupported version %x", pushes[1]))
	}
	if len(pushes[2]) != chainhash.HashSize {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-106", fmt.Sprintf("bond txid must be %d bytes, got %d", chainhash.HashSize, len(pushes[2])))
	}
	if len(pushes) == 5 {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-107", "record has no signature")
	}
	if len(pushes) > 6 {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-103", fmt.Sprintf("record has %d pushes, want 6", len(pushes)))
	}
	if !utf8.Valid(pushes[3]) || !utf8.Valid(pushes[4]) {
		return nil, faults.New(faults.KindMalformed, "ASSERT-DEC-108", "topic and claim must be UTF-8")
	}
	if _, err := ecdsa.ParseDERSignature(pushes[5]); err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "ASSERT-DEC-109", "signature is not DER", err)
	}
	r := &Record{Topic: string(pushes[3]), Claim: string(pushes[4]), Signature: pushes[5]}
	copy(r.BondTxid[:], pushes[2])
	return r, nil
}
