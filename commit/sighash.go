package commit

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Signature hash types. Only SIGHASH_ALL with the fork-id bit is produced or
// accepted; it is the only mode that commits to every output.
const (
	SigHashAll       byte = 0x01
	SigHashForkID    byte = 0x40
	SigHashAllForkID      = SigHashAll | SigHashForkID
)

// MinPreimageSize is the size of a preimage with an empty script code.
const MinPreimageSize = 4 + 32 + 32 + 36 + 1 + 8 + 4 + 32 + 4 + 4

// Offsets measured back from the end of a preimage.
const (
	tailHashType    = 4
	tailLockTime    = 8
	tailOutputs     = 40
	tailSequence    = 44
	tailValue       = 52
	outputsHashSize = chainhash.HashSize
)

// Preimage returns the signature-hash preimage of input idx of tx
// (BIP143 layout, SIGHASH_ALL|SIGHASH_FORKID):
//
//	version | hashPrevouts | hashSequence | outpoint | scriptCode |
//	value | sequence | hashOutputs | lockTime | sighashType
//
// hashOutputs is OutputsDigest(tx), which is what ties a signature to the
// exact output set a covenant expects.
func Preimage(tx *wire.MsgTx, idx int, scriptCode []byte, value int64) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("commit: nil transaction")
	}
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("commit: input index %d out of range (%d inputs)", idx, len(tx.TxIn))
	}

	var prevouts, sequences bytes.Buffer
	var u32 [4]byte
	for _, in := range tx.TxIn {
		prevouts.Write(in.PreviousOutPoint.Hash[:])
		binary.LittleEndian.PutUint32(u32[:], in.PreviousOutPoint.Index)
		prevouts.Write(u32[:])
		binary.LittleEndian.PutUint32(u32[:], in.Sequence)
		sequences.Write(u32[:])
	}
	hashOutputs := OutputsDigest(tx)
	in := tx.TxIn[idx]

	var buf bytes.Buffer
	buf.Grow(MinPreimageSize + len(scriptCode) + 8)
	binary.LittleEndian.PutUint32(u32[:], uint32(tx.Version))
	buf.Write(u32[:])
	buf.Write(chainhash.DoubleHashB(prevouts.Bytes()))
	buf.Write(chainhash.DoubleHashB(sequences.Bytes()))
	buf.Write(in.PreviousOutPoint.Hash[:])
	binary.LittleEndian.PutUint32(u32[:], in.PreviousOutPoint.Index)
	buf.Write(u32[:])
	_ = wire.WriteVarBytes(&buf, 0, scriptCode)
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], uint64(value))
	buf.Write(v[:])
	binary.LittleEndian.PutUint32(u32[:], in.Sequence)
	buf.Write(u32[:])
	buf.Write(hashOutputs[:])
	binary.LittleEndian.PutUint32(u32[:], tx.LockTime)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(SigHashAllForkID))
	buf.Write(u32[:])
	return buf.Bytes(), nil
}

// SignatureHash is the digest signed for a preimage.
func SignatureHash(preimage []byte) []byte {
	return chainhash.DoubleHashB(preimage)
}

func checkPreimage(preimage []byte) error {
	if len(preimage) < MinPreimageSize {
		return fmt.Errorf("commit: preimage too short (%d bytes)", len(preimage))
	}
	return nil
}

// PreimageOutputsDigest returns the hashOutputs field of a preimage.
func PreimageOutputsDigest(preimage []byte) (chainhash.Hash, error) {
	var h chainhash.Hash
	if err := checkPreimage(preimage); err != nil {
		return h, err
	}
	n := len(preimage)
	copy(h[:], preimage[n-tailOutputs:n-tailOutputs+outputsHashSize])
	return h, nil
}

// PreimageLockTime returns the lockTime field of a preimage.
func PreimageLockTime(preimage []byte) (uint32, error) {
	if err := checkPreimage(preimage); err != nil {
		return 0, err
	}
	n := len(preimage)
	return binary.LittleEndian.Uint32(preimage[n-tailLockTime : n-tailHashType]), nil
}

// PreimageSequence returns the spent input's sequence field.
func PreimageSequence(preimage []byte) (uint32, error) {
	if err := checkPreimage(preimage); err != nil {
		return 0, err
	}
	n := len(preimage)
	return binary.LittleEndian.Uint32(preimage[n-tailSequence : n-tailOutputs]), nil
}

// PreimageValue returns the value of the output being spent.
func PreimageValue(preimage []byte) (int64, error) {
	if err := checkPreimage(preimage); err != nil {
		return 0, err
	}
	n := len(preimage)
	return int64(binary.LittleEndian.Uint64(preimage[n-tailValue : n-tailSequence])), nil
}

// PreimageHashType returns the trailing sighash type of a preimage.
func PreimageHashType(preimage []byte) (uint32, error) {
	if err := checkPreimage(preimage); err != nil {
		return 0, err
	}
	n := len(preimage)
	return binary.LittleEndian.Uint32(preimage[n-tailHashType:]), nil
}
