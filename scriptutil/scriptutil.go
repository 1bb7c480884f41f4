// Package scriptutil holds the push-level script helpers shared by the contract
// decoder and the ASSERT1 codec.
package scriptutil

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// ErrNotPushOnly is returned when a region expected to hold only data pushes
// contains another opcode.
var ErrNotPushOnly = errors.New("scriptutil: non-push opcode")

// pushValue returns the bytes an opcode places on the stack, treating the
// small-integer opcodes the way a canonical builder emits single bytes.
func pushValue(op byte, data []byte) ([]byte, bool) {
	switch {
	case op == txscript.OP_0:
		return []byte{}, true
	case op == txscript.OP_1NEGATE:
		return []byte{0x81}, true
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return []byte{op - (txscript.OP_1 - 1)}, true
	case op <= txscript.OP_PUSHDATA4:
		return data, true
	default:
		return nil, false
	}
}

// Pushes decodes a script made only of data pushes.
func Pushes(script []byte) ([][]byte, error) {
	var out [][]byte
	tok := txscript.MakeScriptTokenizer(0, script)
	for tok.Next() {
		v, ok := pushValue(tok.Opcode(), tok.Data())
		if !ok {
			return nil, fmt.Errorf("%w 0x%02x at push %d", ErrNotPushOnly, tok.Opcode(), len(out))
		}
		out = append(out, v)
	}
	if err := tok.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendPush appends data to script as one push, using the shortest
// OP_DATA_N or OP_PUSHDATA form for its length. Unlike txscript.ScriptBuilder
// it has no element size limit and never turns a one-byte value into a
// small-integer opcode, so Pushes returns data unchanged.
func AppendPush(script, data []byte) []byte {
	n := len(data)
	switch {
	case n == 0:
		script = append(script, txscript.OP_0)
	case n < txscript.OP_PUSHDATA1:
		script = append(script, byte(n))
	case n <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(n))
	case n <= 0xffff:
		script = binary.LittleEndian.AppendUint16(append(script, txscript.OP_PUSHDATA2), uint16(n))
	default:
		script = binary.LittleEndian.AppendUint32(append(script, txscript.OP_PUSHDATA4), uint32(n))
	}
	return append(script, data...)
}

// LeadingPushes decodes the first n data pushes of script and returns them
// together with the remaining bytes.
func LeadingPushes(script []byte, n int) ([][]byte, []byte, error) {
	out := make([][]byte, 0, n)
	tok := txscript.MakeScriptTokenizer(0, script)
	for len(out) < n {
		if !tok.Next() {
			if err := tok.Err(); err != nil {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("scriptutil: expected %d pushes, found %d", n, len(out))
		}
		v, ok := pushValue(tok.Opcode(), tok.Data())
		if !ok {
			return nil, nil, fmt.Errorf("%w 0x%02x at push %d", ErrNotPushOnly, tok.Opcode(), len(out))
		}
		out = append(out, v)
	}
	return out, script[tok.ByteIndex():], nil
}

// maxScriptNumLen bounds the numbers this package decodes. Lock heights need
// at most five bytes; amounts at most eight.
const maxScriptNumLen = 8

// ScriptNum decodes a minimally encoded little-endian sign-magnitude script
// number, the encoding txscript.ScriptBuilder.AddInt64 produces.
func ScriptNum(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > maxScriptNumLen {
		return 0, fmt.Errorf("scriptutil: number too long (%d bytes)", len(b))
	}
	// Minimal encoding: the top byte may only be 0x00/0x80 when needed for the sign bit.
	if b[len(b)-1]&0x7f == 0 {
		if len(b) == 1 || b[len(b)-2]&0x80 == 0 {
			return 0, errors.New("scriptutil: non-minimal number encoding")
		}
	}
	var v int64
	for i, c := range b {
		v |= int64(c) << (8 * uint(i))
	}
	if b[len(b)-1]&0x80 != 0 {
		v &^= int64(0x80) << (8 * uint(len(b)-1))
		return -v, nil
	}
	return v, nil
}
