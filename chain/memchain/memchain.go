// Package memchain is an in-memory ledger implementing chain.Oracle. It
// enforces the single-spend rule, lock-time finality and value balance, and
// runs a pluggable per-input validator. It is used by tests and demos.
package memchain

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/txbuild"
)

// Validator checks input idx of tx against the output it spends.
type Validator func(tx *wire.MsgTx, idx int, prev *wire.TxOut) error

// ScriptValidator accepts covenant inputs that pass contract.EvaluateInput
// and pay-to-public-key-hash inputs with a valid signature. Any other
// previous output type is rejected.
func ScriptValidator(tx *wire.MsgTx, idx int, prev *wire.TxOut) error {
	switch {
	case txscript.IsPayToScriptHash(prev.PkScript):
		_, _, err := contract.EvaluateInput(contract.Spend{Tx: tx, InputIndex: idx, PrevOut: prev})
		return err
	case txscript.IsPayToPubKeyHash(prev.PkScript):
		return txbuild.VerifyP2PKH(tx, idx, prev)
	default:
		return fmt.Errorf("memchain: unsupported previous output script")
	}
}

// AcceptAll is a Validator that performs no script checks.
func AcceptAll(*wire.MsgTx, int, *wire.TxOut) error { return nil }

type utxo struct {
	out    *wire.TxOut
	height uint32
}

type spend struct {
	by     chainhash.Hash
	height uint32
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	params   *chaincfg.Params
	height   uint32
	validate Validator
	minted   uint64

	txs     map[chainhash.Hash][]byte
	unspent map[wire.OutPoint]utxo
	spent   map[wire.OutPoint]spend
}

var _ chain.Oracle = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithValidator replaces ScriptValidator.
func WithValidator(v Validator) Option { return func(l *Ledger) { l.validate = v } }

// WithParams selects the network used to decode addresses (default regtest).
func WithParams(p *chaincfg.Params) Option { return func(l *Ledger) { l.params = p } }

// WithHeight sets the starting chain height.
func WithHeight(h uint32) Option { return func(l *Ledger) { l.height = h } }

func New(opts ...Option) *Ledger {
	l := &Ledger{
		params:   &chaincfg.RegressionNetParams,
		validate: ScriptValidator,
		txs:      map[chainhash.Hash][]byte{},
		unspent:  map[wire.OutPoint]utxo{},
		spent:    map[wire.OutPoint]spend{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// SetHeight moves the chain tip.
func (l *Ledger) SetHeight(h uint32) {
	l.mu.Lock()
	l.height = h
	l.mu.Unlock()
}

// Mine advances the tip by n blocks and returns the new height.
func (l *Ledger) Mine(n uint32) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	return l.height
}

// Mint creates value out of nothing, paying pkScript, and returns the new
// outpoint. The minting transaction is retrievable through RawTx.
func (l *Ledger) Mint(pkScript []byte, value int64) wire.OutPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minted++
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], l.minted)
	tx := wire.NewMsgTx(txbuild.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), nonce[:], nil))
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	raw, _ := chain.EncodeTx(tx)
	txid := tx.TxHash()
	l.txs[txid] = raw
	op := wire.OutPoint{Hash: txid, Index: 0}
	l.unspent[op] = utxo{out: tx.TxOut[0], height: l.height}
	return op
}

func (l *Ledger) Height(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, faults.Wrap(faults.KindTransport, "CHAIN-CTX-001", "height", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, nil
}

func (l *Ledger) RawTx(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.KindTransport, "CHAIN-CTX-001", "raw tx", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok := l.txs[txid]
	if !ok {
		return nil, chain.NotFound("transaction " + txid.String())
	}
	return bytes.Clone(raw), nil
}

func (l *Ledger) SpendStatus(ctx context.Context, outpoint wire.OutPoint) (chain.SpendStatus, error) {
	if err := ctx.Err(); err != nil {
		return chain.SpendStatus{}, faults.Wrap(faults.KindTransport, "CHAIN-CTX-001", "spend status", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.spent[outpoint]; ok {
		return chain.SpendStatus{Spent: true, SpentBy: s.by, Height: s.height}, nil
	}
	if _, ok := l.unspent[outpoint]; ok {
		return chain.SpendStatus{}, nil
	}
	return chain.SpendStatus{}, chain.NotFound("output " + outpoint.String())
}

func (l *Ledger) Unspent(ctx context.Context, address string) ([]chain.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.KindTransport, "CHAIN-CTX-001", "unspent", err)
	}
	addr, err := btcutil.DecodeAddress(address, l.params)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "CHAIN-ADDR-101", "decode address", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "CHAIN-ADDR-102", "address script", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []chain.Utxo
	for op, u := range l.unspent {
		if bytes.Equal(u.out.PkScript, script) {
			out = append(out, chain.Utxo{OutPoint: op, Value: u.out.Value, Height: u.height})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height < out[j].Height
		}
		return out[i].OutPoint.String() < out[j].OutPoint.String()
	})
	return out, nil
}

// Broadcast validates and applies raw. A transaction is accepted at the
// current height; there is no separate mempool.
func (l *Ledger) Broadcast(ctx context.Context, raw []byte) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, faults.Wrap(faults.KindTransport, "CHAIN-CTX-001", "broadcast", err)
	}
	tx, err := chain.DecodeTx(raw)
	if err != nil {
		return chainhash.Hash{}, err
	}
	txid := tx.TxHash()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.txs[txid]; dup {
		return txid, nil
	}
	if len(tx.TxIn) == 0 || len(tx.TxOut) == 0 {
		return chainhash.Hash{}, chain.Rejected("transaction has no inputs or no outputs")
	}
	if !l.final(tx) {
		return chainhash.Hash{}, chain.Rejected(fmt.Sprintf("non-final: lock time %d at height %d", tx.LockTime, l.height))
	}

	var in int64
	seen := map[wire.OutPoint]bool{}
	for i, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		if seen[op] {
			return chainhash.Hash{}, chain.Rejected(fmt.Sprintf("input %d duplicates %s", i, op))
		}
		seen[op] = true
		if s, ok := l.spent[op]; ok {
			return chainhash.Hash{}, faults.Wrap(faults.KindPrecondition, "CHAIN-UTXO-201",
				fmt.Sprintf("already spent: %s spent by %s", op, s.by), chain.ErrRejected)
		}
		u, ok := l.unspent[op]
		if !ok {
			return chainhash.Hash{}, chain.Rejected(fmt.Sprintf("input %d spends unknown output %s", i, op))
		}
		if err := l.validate(tx, i, u.out); err != nil {
			return chainhash.Hash{}, chain.Rejected(fmt.Sprintf("input %d: %v", i, err))
		}
		in += u.out.Value
	}
	var out int64
	for _, o := range tx.TxOut {
		if o.Value < 0 {
			return chainhash.Hash{}, chain.Rejected("negative output value")
		}
		out += o.Value
	}
	if out > in {
		return chainhash.Hash{}, chain.Rejected(fmt.Sprintf("outputs %d exceed inputs %d", out, in))
	}

	for _, txIn := range tx.TxIn {
		delete(l.unspent, txIn.PreviousOutPoint)
		l.spent[txIn.PreviousOutPoint] = spend{by: txid, height: l.height}
	}
	for i, o := range tx.TxOut {
		if txscript.GetScriptClass(o.PkScript) == txscript.NullDataTy || len(o.PkScript) > 0 && o.PkScript[0] == txscript.OP_FALSE {
			continue
		}
		l.unspent[wire.OutPoint{Hash: txid, Index: uint32(i)}] = utxo{out: o, height: l.height}
	}
	l.txs[txid] = bytes.Clone(raw)
	return txid, nil
}

// final applies height lock-time finality: a transaction with a nonzero lock
// time and at least one non-final input may only enter a block above its lock
// time. The next block is height+1.
func (l *Ledger) final(tx *wire.MsgTx) bool {
	if tx.LockTime == 0 {
		return true
	}
	if tx.LockTime >= contract.LockTimeThreshold {
		// Timestamp lock times are not modelled; treat them as unreached.
		return allFinal(tx)
	}
	if tx.LockTime < l.height+1 {
		return true
	}
	return allFinal(tx)
}

func allFinal(tx *wire.MsgTx) bool {
	for _, in := range tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}
