package contract_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
)

func testKey(b byte) *btcec.PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return k
}

var (
	holderKey    = testKey(1)
	slasherKey   = testKey(2)
	requesterKey = testKey(3)
	workerKey    = testKey(4)
	slashDest    = [commit.HashSize]byte{0xde, 0xad, 0xbe, 0xef}
)

func testBond(t *testing.T, lockUntil uint32) *contract.Bond {
	t.Helper()
	b, err := contract.NewBond(holderKey.PubKey(), lockUntil, slasherKey.PubKey(), slashDest)
	require.NoError(t, err)
	return b
}

func testEscrow(t *testing.T, timeout uint32) *contract.Escrow {
	t.Helper()
	e, err := contract.NewEscrow(requesterKey.PubKey(), workerKey.PubKey(), timeout)
	require.NoError(t, err)
	return e
}

// fundingTx returns a transaction whose output 0 locks value to c.
func fundingTx(c contract.Contract, value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, contract.LockingScript(c)))
	return tx
}

func TestBondRoundTrip(t *testing.T) {
	for _, lock := range []uint32{1, 16, 17, 100, 499_999_999} {
		b := testBond(t, lock)
		got, err := contract.Decode(b.RedeemScript())
		require.NoError(t, err, "lock %d", lock)
		bond, ok := got.(*contract.Bond)
		require.True(t, ok)
		assert.Equal(t, lock, bond.LockUntil)
		assert.True(t, bond.HolderPubKey.IsEqual(holderKey.PubKey()))
		assert.True(t, bond.SlasherPubKey.IsEqual(slasherKey.PubKey()))
		assert.Equal(t, slashDest, bond.SlashTo)
		assert.Equal(t, b.RedeemScript(), bond.RedeemScript())
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	e := testEscrow(t, 500)
	got, err := contract.DecodeEscrow(e.RedeemScript())
	require.NoError(t, err)
	assert.Equal(t, uint32(500), got.Timeout)
	assert.True(t, got.RequesterPubKey.IsEqual(requesterKey.PubKey()))
	assert.True(t, got.WorkerPubKey.IsEqual(workerKey.PubKey()))
	assert.Equal(t, contract.KindEscrow, got.Kind())

	_, err = contract.DecodeBond(e.RedeemScript())
	assert.Equal(t, "COV-DEC-101", faults.RuleID(err))
}

func TestDecodeRejectsForeignScript(t *testing.T) {
	_, err := contract.Decode([]byte{txscript.OP_TRUE})
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindMalformed))
	assert.Equal(t, "COV-DEC-101", faults.RuleID(err))
}

func bondBodyFrom(t *testing.T, b *contract.Bond) []byte {
	t.Helper()
	head, err := txscript.NewScriptBuilder().
		AddData(b.SlashTo[:]).
		AddData(b.SlasherPubKey.SerializeCompressed()).
		AddInt64(int64(b.LockUntil)).
		AddData(b.HolderPubKey.SerializeCompressed()).
		Script()
	require.NoError(t, err)
	redeem := b.RedeemScript()
	require.True(t, bytes.HasPrefix(redeem, head))
	return redeem[len(head):]
}

func TestDecodeRejectsBadConstructorArguments(t *testing.T) {
	b := testBond(t, 100)
	body := bondBodyFrom(t, b)

	cases := []struct {
		name string
		head *txscript.ScriptBuilder
		rule string
	}{
		{
			name: "short holder key",
			head: txscript.NewScriptBuilder().AddData(slashDest[:]).AddData(slasherKey.PubKey().SerializeCompressed()).AddInt64(100).AddData([]byte{1, 2, 3}),
			rule: "COV-DEC-103",
		},
		{
			name: "short slash destination",
			head: txscript.NewScriptBuilder().AddData(slashDest[:19]).AddData(slasherKey.PubKey().SerializeCompressed()).AddInt64(100).AddData(holderKey.PubKey().SerializeCompressed()),
			rule: "COV-DEC-103",
		},
		{
			name: "timestamp lock",
			head: txscript.NewScriptBuilder().AddData(slashDest[:]).AddData(slasherKey.PubKey().SerializeCompressed()).AddInt64(600_000_000).AddData(holderKey.PubKey().SerializeCompressed()),
			rule: "COV-DEC-104",
		},
		{
			name: "missing argument",
			head: txscript.NewScriptBuilder().AddData(slasherKey.PubKey().SerializeCompressed()).AddInt64(100).AddData(holderKey.PubKey().SerializeCompressed()),
			rule: "COV-DEC-102",
		},
		{
			name: "extra argument",
			head: txscript.NewScriptBuilder().AddInt64(7).AddData(slashDest[:]).AddData(slasherKey.PubKey().SerializeCompressed()).AddInt64(100).AddData(holderKey.PubKey().SerializeCompressed()),
			rule: "COV-DEC-102",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			head, err := tc.head.Script()
			require.NoError(t, err)
			_, err = contract.Decode(append(head, body...))
			require.Error(t, err)
			assert.True(t, faults.IsKind(err, faults.KindMalformed))
			assert.Equal(t, tc.rule, faults.RuleID(err))
		})
	}
}

func TestNewBondValidates(t *testing.T) {
	_, err := contract.NewBond(nil, 100, slasherKey.PubKey(), slashDest)
	assert.Equal(t, "COV-DEC-105", faults.RuleID(err))
	_, err = contract.NewBond(holderKey.PubKey(), 0, slasherKey.PubKey(), slashDest)
	assert.Equal(t, "COV-DEC-104", faults.RuleID(err))
	_, err = contract.NewEscrow(requesterKey.PubKey(), workerKey.PubKey(), contract.LockTimeThreshold)
	assert.Equal(t, "COV-DEC-104", faults.RuleID(err))
}

func TestOperations(t *testing.T) {
	b := testBond(t, 100)
	e := testEscrow(t, 500)

	sel, err := contract.Selector(b, contract.OpSlash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sel)
	sel, err = contract.Selector(e, contract.OpTimeout)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sel)

	_, err = contract.Selector(b, contract.OpApprove)
	assert.Equal(t, "COV-OP-001", faults.RuleID(err))
	_, err = contract.OperationForSelector(b, 2)
	assert.Equal(t, "COV-OP-002", faults.RuleID(err))

	op, err := contract.ParseOperation(contract.KindEscrow, "refund")
	require.NoError(t, err)
	assert.Equal(t, contract.OpRefund, op)
	_, err = contract.ParseOperation(contract.KindBond, "refund")
	assert.Equal(t, "COV-OP-001", faults.RuleID(err))
	_, err = contract.ParseOperation("lease", "release")
	assert.Equal(t, "COV-OP-003", faults.RuleID(err))
}

func TestRolesAndRecipients(t *testing.T) {
	b := testBond(t, 100)
	e := testEscrow(t, 500)

	signer, _ := b.Signer(contract.OpRelease)
	assert.True(t, signer.IsEqual(holderKey.PubKey()))
	signer, _ = b.Signer(contract.OpSlash)
	assert.True(t, signer.IsEqual(slasherKey.PubKey()))
	to, _ := b.Recipient(contract.OpSlash)
	assert.Equal(t, slashDest, to)
	assert.Equal(t, uint32(100), b.Threshold(contract.OpRelease))
	assert.Zero(t, b.Threshold(contract.OpSlash))

	signer, _ = e.Signer(contract.OpRefund)
	assert.True(t, signer.IsEqual(workerKey.PubKey()))
	signer, _ = e.Signer(contract.OpTimeout)
	assert.True(t, signer.IsEqual(requesterKey.PubKey()))
	to, _ = e.Recipient(contract.OpApprove)
	assert.Equal(t, e.WorkerHash(), to)
	to, _ = e.Recipient(contract.OpTimeout)
	assert.Equal(t, e.RequesterHash(), to)
	assert.Zero(t, e.Threshold(contract.OpApprove))
	assert.Equal(t, uint32(500), e.Threshold(contract.OpTimeout))
}

func TestLockingScriptAndAddress(t *testing.T) {
	b := testBond(t, 100)
	script := contract.LockingScript(b)
	assert.True(t, txscript.IsPayToScriptHash(script))
	h := contract.ScriptHash(b)
	assert.Equal(t, h[:], script[2:22])

	addr, err := contract.Address(b, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)
}

func TestUnlockRoundTrip(t *testing.T) {
	u := contract.Unlock{
		Signature:    []byte{0x30, 0x01, 0x41},
		Preimage:     bytes.Repeat([]byte{0xaa}, commit.MinPreimageSize),
		Amount:       1,
		Selector:     0,
		RedeemScript: testBond(t, 100).RedeemScript(),
	}
	script, err := u.Script()
	require.NoError(t, err)
	got, err := contract.DecodeUnlock(script)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = contract.DecodeUnlock([]byte{txscript.OP_DUP})
	assert.Equal(t, "COV-UNL-101", faults.RuleID(err))
	_, err = contract.DecodeUnlock([]byte{txscript.OP_1, txscript.OP_2})
	assert.Equal(t, "COV-UNL-102", faults.RuleID(err))
}

func TestStateAfter(t *testing.T) {
	cases := map[contract.Operation]contract.State{
		contract.OpRelease: contract.StateReleased,
		contract.OpSlash:   contract.StateSlashed,
		contract.OpApprove: contract.StateApproved,
		contract.OpRefund:  contract.StateRefunded,
		contract.OpTimeout: contract.StateTimedOut,
	}
	for op, want := range cases {
		got, err := contract.StateAfter(op)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.True(t, got.Terminal())
	}
	assert.False(t, contract.StateOpen.Terminal())
	_, err := contract.StateAfter("burn")
	assert.Error(t, err)
}
