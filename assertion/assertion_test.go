package assertion_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/covenants/assertion"
	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/memchain"
	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/deploy"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/txbuild"
)

func key(b byte) *btcec.PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return k
}

var bondTxid = chainhash.Hash{0x01, 0x02, 0x03, 0xff}

func TestRoundTrip(t *testing.T) {
	k := key(1)
	for _, tc := range []struct{ topic, claim string }{
		{"price/BCHUSD", "412.50"},
		{"", "empty topic"},
		{"ü", "\x01"},
		{"\x00", "\x00"},
		{"\x05", "\x10"},
	} {
		rec, err := assertion.Sign(bondTxid, tc.topic, tc.claim, k)
		require.NoError(t, err)
		script, err := rec.Script()
		require.NoError(t, err)

		got, err := assertion.DecodeScript(script)
		require.NoError(t, err)
		assert.Equal(t, bondTxid, got.BondTxid)
		assert.Equal(t, tc.topic, got.Topic)
		assert.Equal(t, tc.claim, got.Claim)
		assert.True(t, got.Verify(k.PubKey()))
		assert.False(t, got.Verify(key(2).PubKey()))
	}
}

func TestLayout(t *testing.T) {
	rec, err := assertion.Sign(bondTxid, "t", "c", key(1))
	require.NoError(t, err)
	script, err := rec.Script()
	require.NoError(t, err)

	assert.Equal(t, byte(txscript.OP_FALSE), script[0])
	assert.Equal(t, byte(txscript.OP_RETURN), script[1])
	assert.Equal(t, byte(7), script[2])
	assert.Equal(t, []byte("ASSERT1"), script[3:10])
	// The version byte is a small integer and is written as OP_1.
	assert.Equal(t, byte(txscript.OP_1), script[10])
	assert.Equal(t, byte(32), script[11])
	assert.Equal(t, bondTxid[:], script[12:44])
}

func TestVerifyDetectsTampering(t *testing.T) {
	k := key(1)
	rec, err := assertion.Sign(bondTxid, "topic", "claim", k)
	require.NoError(t, err)

	topic := *rec
	topic.Topic = "topiC"
	claim := *rec
	claim.Claim = "clain"
	txid := *rec
	txid.BondTxid[31] ^= 0x01
	sig := *rec
	sig.Signature = []byte{0x30, 0x00}

	for name, r := range map[string]assertion.Record{"topic": topic, "claim": claim, "txid": txid, "signature": sig} {
		assert.False(t, r.Verify(k.PubKey()), name)
	}
	assert.True(t, rec.Verify(k.PubKey()))
}

func TestDecodeMalformed(t *testing.T) {
	rec, err := assertion.Sign(bondTxid, "topic", "claim", key(1))
	require.NoError(t, err)

	build := func(pushes ...[]byte) []byte {
		b := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE).AddOp(txscript.OP_RETURN)
		for _, p := range pushes {
			b.AddData(p)
		}
		s, err := b.Script()
		require.NoError(t, err)
		return s
	}
	tag, ver := []byte("ASSERT1"), []byte{1}

	cases := map[string]struct {
		script []byte
		rule   string
	}{
		"no marker":       {append([]byte{txscript.OP_RETURN}, build(tag)[2:]...), "ASSERT-DEC-101"},
		"non-push":        {append(build(tag, ver), txscript.OP_DUP), "ASSERT-DEC-102"},
		"four pushes":     {build(tag, ver, bondTxid[:], []byte("t")), "ASSERT-DEC-103"},
		"wrong tag":       {build([]byte("ASSERT2"), ver, bondTxid[:], []byte("t"), []byte("c"), rec.Signature), "ASSERT-DEC-104"},
		"wrong version":   {build(tag, []byte{2}, bondTxid[:], []byte("t"), []byte("c"), rec.Signature), "ASSERT-DEC-105"},
		"short txid":      {build(tag, ver, bondTxid[:31], []byte("t"), []byte("c"), rec.Signature), "ASSERT-DEC-106"},
		"no signature":    {build(tag, ver, bondTxid[:], []byte("t"), []byte("c")), "ASSERT-DEC-107"},
		"extra push":      {build(tag, ver, bondTxid[:], []byte("t"), []byte("c"), rec.Signature, []byte("x")), "ASSERT-DEC-103"},
		"invalid utf8":    {build(tag, ver, bondTxid[:], []byte{0xff, 0xfe}, []byte("c"), rec.Signature), "ASSERT-DEC-108"},
		"non-DER sig":     {build(tag, ver, bondTxid[:], []byte("t"), []byte("c"), []byte("not a signature")), "ASSERT-DEC-109"},
		"empty script":    {nil, "ASSERT-DEC-101"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := assertion.DecodeScript(tc.script)
			require.Error(t, err)
			assert.True(t, faults.IsKind(err, faults.KindMalformed))
			assert.Equal(t, tc.rule, faults.RuleID(err))
		})
	}
}

// publish writes rec in a data-carrier transaction funded by k.
func publish(t *testing.T, l *memchain.Ledger, rec *assertion.Record, k *btcec.PrivateKey) *wire.MsgTx {
	t.Helper()
	script := commit.P2PKHScript(contract.PubKeyHash(k.PubKey()))
	op := l.Mint(script, 3000)
	data, err := rec.Script()
	require.NoError(t, err)
	p, err := txbuild.NewDataCarrier([]txbuild.WalletInput{{OutPoint: op, Value: 3000, PkScript: script}}, data, 300, contract.PubKeyHash(k.PubKey()))
	require.NoError(t, err)
	require.NoError(t, p.Sign(k))
	_, err = chain.Broadcast(context.Background(), l, p.Tx)
	require.NoError(t, err)
	return p.Tx
}

func TestFromTx(t *testing.T) {
	l := memchain.New()
	k := key(5)
	rec, err := assertion.Sign(bondTxid, "topic", "claim", k)
	require.NoError(t, err)
	tx := publish(t, l, rec, k)

	a, err := assertion.FromTx(tx)
	require.NoError(t, err)
	assert.True(t, a.Signer.IsEqual(k.PubKey()))
	assert.True(t, a.Valid())
	assert.Equal(t, uint32(0), a.Vout)
	assert.Equal(t, tx.TxHash(), a.Txid)

	// Another key signing the record does not make it valid for this funder.
	other, err := assertion.Sign(bondTxid, "topic", "claim", key(6))
	require.NoError(t, err)
	a, err = assertion.FromTx(publish(t, l, other, k))
	require.NoError(t, err)
	assert.False(t, a.Valid())

	_, err = assertion.FromTx(wire.NewMsgTx(2))
	assert.Equal(t, "ASSERT-TX-201", faults.RuleID(err))
}

func TestWeightOfSlashedBond(t *testing.T) {
	ctx := context.Background()
	l := memchain.New(memchain.WithHeight(10))
	holder, slasher, treasury := key(1), key(2), key(3)

	b, err := contract.NewBond(holder.PubKey(), 1000, slasher.PubKey(), contract.PubKeyHash(treasury.PubKey()))
	require.NoError(t, err)
	holderScript := commit.P2PKHScript(contract.PubKeyHash(holder.PubKey()))
	op := l.Mint(holderScript, 11000)
	funding, err := txbuild.NewFunding([]txbuild.WalletInput{{OutPoint: op, Value: 11000, PkScript: holderScript}},
		contract.LockingScript(b), 10000, 300, contract.PubKeyHash(holder.PubKey()))
	require.NoError(t, err)
	require.NoError(t, funding.Sign(holder))
	bondID, err := chain.Broadcast(ctx, l, funding.Tx)
	require.NoError(t, err)

	rec, err := assertion.Sign(bondID, "oracle/round-7", "yes", holder)
	require.NoError(t, err)
	a, err := assertion.FromTx(publish(t, l, rec, holder))
	require.NoError(t, err)

	w, err := assertion.Resolve(ctx, l, nil, a)
	require.NoError(t, err)
	assert.True(t, w.Backed)
	assert.Equal(t, int64(10000), w.Effective())
	assert.Equal(t, contract.StateOpen, w.Outcome)

	slash, err := txbuild.NewSpend(b, funding.Tx, 0, contract.OpSlash, txbuild.SpendParams{Fee: 300})
	require.NoError(t, err)
	require.NoError(t, slash.Sign(slasher))
	slashID, err := chain.Broadcast(ctx, l, slash.Tx)
	require.NoError(t, err)

	assert.True(t, a.Valid(), "signature stays valid after the bond is slashed")
	w, err = assertion.Resolve(ctx, l, nil, a)
	require.NoError(t, err)
	assert.False(t, w.Backed)
	assert.Zero(t, w.Effective())
	assert.Equal(t, int64(10000), w.Value)
	assert.Equal(t, slashID, w.SpentBy)
	assert.Equal(t, contract.StateSlashed, w.Outcome)

	_, err = assertion.ResolveWeight(ctx, l, bondID, 5)
	assert.Equal(t, "ASSERT-W-301", faults.RuleID(err))
}

func TestLongFieldsRoundTrip(t *testing.T) {
	l := memchain.New()
	k := key(1)
	for _, tc := range []struct {
		size int
		op   byte
	}{
		{521, txscript.OP_PUSHDATA2},
		{600, txscript.OP_PUSHDATA2},
		{70_000, txscript.OP_PUSHDATA4},
	} {
		claim := strings.Repeat("x", tc.size)
		rec, err := assertion.Sign(bondTxid, "topic", claim, k)
		require.NoError(t, err)
		script, err := rec.Script()
		require.NoError(t, err, "claim of %d bytes", tc.size)
		// 44 header bytes, then the five-byte topic push.
		assert.Equal(t, tc.op, script[50], "claim of %d bytes", tc.size)

		got, err := assertion.DecodeScript(script)
		require.NoError(t, err)
		assert.Equal(t, claim, got.Claim)
		assert.True(t, got.Verify(k.PubKey()))

		a, err := assertion.FromTx(publish(t, l, rec, k))
		require.NoError(t, err)
		assert.True(t, a.Valid())
		assert.Len(t, a.Claim, tc.size)
	}

	topic := strings.Repeat("t", 1000)
	rec, err := assertion.Sign(bondTxid, topic, "c", k)
	require.NoError(t, err)
	script, err := rec.Script()
	require.NoError(t, err)
	got, err := assertion.DecodeScript(script)
	require.NoError(t, err)
	assert.Equal(t, topic, got.Topic)
	assert.Equal(t, "c", got.Claim)
}

func TestDecodePushCountMessages(t *testing.T) {
	build := func(n int) []byte {
		b := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE).AddOp(txscript.OP_RETURN)
		for i := 0; i < n; i++ {
			b.AddData([]byte("p"))
		}
		s, err := b.Script()
		require.NoError(t, err)
		return s
	}
	_, err := assertion.DecodeScript(build(4))
	assert.Equal(t, "ASSERT-DEC-103", faults.RuleID(err))
	assert.EqualError(t, err, "record has 4 pushes, want at least 5")

	rec, err := assertion.Sign(bondTxid, "t", "c", key(1))
	require.NoError(t, err)
	script, err := rec.Script()
	require.NoError(t, err)
	_, err = assertion.DecodeScript(append(script, txscript.OP_1))
	assert.Equal(t, "ASSERT-DEC-103", faults.RuleID(err))
	assert.EqualError(t, err, "record has 7 pushes, want 6")
}

// records is an in-memory deployment record source.
type records []*deploy.Record

func (rs records) ByTxid(_ context.Context, txid chainhash.Hash) ([]*deploy.Record, error) {
	var out []*deploy.Record
	for _, r := range rs {
		if r.Txid == txid.String() {
			out = append(out, r)
		}
	}
	return out, nil
}

// fund locks value to pkScript from a fresh wallet output of payer. The
// funding transaction also pays 1000 sats of change; vout 1 puts the locked
// output after it.
func fund(t *testing.T, l *memchain.Ledger, payer *btcec.PrivateKey, pkScript []byte, value int64, vout uint32) *wire.MsgTx {
	t.Helper()
	wallet := commit.P2PKHScript(contract.PubKeyHash(payer.PubKey()))
	op := l.Mint(wallet, value+1300)
	p, err := txbuild.NewFunding([]txbuild.WalletInput{{OutPoint: op, Value: value + 1300, PkScript: wallet}},
		pkScript, value, 300, contract.PubKeyHash(payer.PubKey()))
	require.NoError(t, err)
	require.Len(t, p.Tx.TxOut, 2)
	if vout == 1 {
		p.Tx.TxOut[0], p.Tx.TxOut[1] = p.Tx.TxOut[1], p.Tx.TxOut[0]
	}
	require.NoError(t, p.Sign(payer))
	_, err = chain.Broadcast(context.Background(), l, p.Tx)
	require.NoError(t, err)
	return p.Tx
}

func record(t *testing.T, c contract.Contract, tx *wire.MsgTx, vout uint32, amount int64) *deploy.Record {
	t.Helper()
	r, err := deploy.NewRecord(c, &chaincfg.RegressionNetParams, wire.OutPoint{Hash: tx.TxHash(), Index: vout}, amount, 10, time.Unix(1700000000, 0))
	require.NoError(t, err)
	return r
}

func TestWeightRequiresBondOutput(t *testing.T) {
	ctx := context.Background()
	l := memchain.New(memchain.WithHeight(10))
	requester, worker, holder, slasher := key(1), key(2), key(3), key(4)

	t.Run("wallet output", func(t *testing.T) {
		op := l.Mint(commit.P2PKHScript(contract.PubKeyHash(holder.PubKey())), 5_000_000)
		w, err := assertion.ResolveWeight(ctx, l, op.Hash, op.Index)
		require.NoError(t, err)
		assert.False(t, w.Backed)
		assert.Zero(t, w.Effective())
		assert.Equal(t, int64(5_000_000), w.Value)
		assert.Equal(t, assertion.StateNotBond, w.Outcome)
	})

	e, err := contract.NewEscrow(requester.PubKey(), worker.PubKey(), 500)
	require.NoError(t, err)
	escrowTx := fund(t, l, requester, contract.LockingScript(e), 10000, 0)
	a := &assertion.Assertion{Record: assertion.Record{BondTxid: escrowTx.TxHash()}}

	t.Run("escrow record", func(t *testing.T) {
		w, err := assertion.Resolve(ctx, l, records{record(t, e, escrowTx, 0, 10000)}, a)
		require.NoError(t, err)
		assert.False(t, w.Backed)
		assert.Equal(t, assertion.StateNotBond, w.Outcome)
	})

	t.Run("spent escrow", func(t *testing.T) {
		s, err := txbuild.NewSpend(e, escrowTx, 0, contract.OpApprove, txbuild.SpendParams{Fee: 300})
		require.NoError(t, err)
		require.NoError(t, s.Sign(requester))
		spendID, err := chain.Broadcast(ctx, l, s.Tx)
		require.NoError(t, err)

		w, err := assertion.ResolveWeight(ctx, l, escrowTx.TxHash(), 0)
		require.NoError(t, err)
		assert.False(t, w.Backed)
		assert.Equal(t, spendID, w.SpentBy)
		assert.Equal(t, assertion.StateNotBond, w.Outcome)
	})

	t.Run("record disagrees with output", func(t *testing.T) {
		b, err := contract.NewBond(holder.PubKey(), 1000, slasher.PubKey(), contract.PubKeyHash(slasher.PubKey()))
		require.NoError(t, err)
		bondTx := fund(t, l, holder, contract.LockingScript(b), 10000, 0)
		bond := &assertion.Assertion{Record: assertion.Record{BondTxid: bondTx.TxHash()}}

		w, err := assertion.Resolve(ctx, l, records{record(t, b, bondTx, 0, 9000)}, bond)
		require.NoError(t, err)
		assert.False(t, w.Backed)
		assert.Equal(t, assertion.StateNotBond, w.Outcome)

		w, err = assertion.Resolve(ctx, l, records{record(t, b, bondTx, 0, 10000)}, bond)
		require.NoError(t, err)
		assert.True(t, w.Backed)
		assert.Equal(t, contract.StateOpen, w.Outcome)
	})
}

func TestResolveUsesRecordedVout(t *testing.T) {
	ctx := context.Background()
	l := memchain.New(memchain.WithHeight(10))
	holder, slasher := key(1), key(2)

	b, err := contract.NewBond(holder.PubKey(), 1000, slasher.PubKey(), contract.PubKeyHash(slasher.PubKey()))
	require.NoError(t, err)
	bondTx := fund(t, l, holder, contract.LockingScript(b), 10000, 1)
	a := &assertion.Assertion{Record: assertion.Record{BondTxid: bondTx.TxHash()}}

	w, err := assertion.Resolve(ctx, l, records{record(t, b, bondTx, 1, 10000)}, a)
	require.NoError(t, err)
	assert.True(t, w.Backed)
	assert.Equal(t, uint32(1), w.Vout)
	assert.Equal(t, int64(10000), w.Effective())

	// Without a record the bond is looked for at output 0, which is change.
	w, err = assertion.Resolve(ctx, l, nil, a)
	require.NoError(t, err)
	assert.False(t, w.Backed)
	assert.Equal(t, uint32(assertion.DefaultBondVout), w.Vout)
	assert.Equal(t, assertion.StateNotBond, w.Outcome)

	w, err = assertion.Resolve(ctx, l, records{}, a)
	require.NoError(t, err)
	assert.Equal(t, uint32(assertion.DefaultBondVout), w.Vout)
}
