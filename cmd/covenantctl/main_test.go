package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/memchain"
	"xdao.co/covenants/chain/oracleregistry"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/deploy"
	"xdao.co/covenants/keys"
)

type harness struct {
	t      *testing.T
	ledger *memchain.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("COVENANTS_DATA_DIR", t.TempDir())
	t.Setenv("COVENANTS_ORACLE_BACKEND", "memchain")
	t.Setenv("COVENANTS_LOG_LEVEL", "warn")
	t.Setenv("COVENANTS_CONFIG", "")

	ledger := memchain.New(memchain.WithHeight(90))
	prev := openOracle
	openOracle = func(string, oracleregistry.Usage) (chain.Oracle, func() error, error) {
		return ledger, nil, nil
	}
	t.Cleanup(func() { openOracle = prev })
	return &harness{t: t, ledger: ledger}
}

func (h *harness) run(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func (h *harness) ok(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run(args...)
	require.Equal(h.t, 0, code, "covenantctl %s\nstderr: %s", strings.Join(args, " "), errOut)
	return out
}

// key creates name from a fixed secret, optionally derives role, and mints
// coins to the resulting key's address.
func (h *harness) key(name string, secret byte, role string, coins int64) keys.Info {
	h.t.Helper()
	out := h.ok("key", "init", "--name", name, "--secret-hex", strings.Repeat(fmt.Sprintf("%02x", secret), 32))
	if role != "" {
		out = h.ok("key", "derive", "--from", name, "--role", role)
	}
	var info keys.Info
	require.NoError(h.t, json.Unmarshal([]byte(out), &info))
	if coins > 0 {
		addr, err := btcutil.DecodeAddress(info.Address, &chaincfg.RegressionNetParams)
		require.NoError(h.t, err)
		script, err := txscript.PayToAddrScript(addr)
		require.NoError(h.t, err)
		h.ledger.Mint(script, coins)
	}
	return info
}

func decodeRecord(t *testing.T, out string) deploy.Record {
	t.Helper()
	var r deploy.Record
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestUsageErrors(t *testing.T) {
	newHarness(t)
	var out, errOut bytes.Buffer

	assert.Equal(t, 2, run(context.Background(), nil, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"bond", "create"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"bond", "approve"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"escrow", "approve"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"bond", "create", "--amount", "-1", "--payer", "x"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"contract", "decode", "zz"}, &out, &errOut))

	out.Reset()
	assert.Equal(t, 0, run(context.Background(), []string{"help"}, &out, &errOut))
	assert.Contains(t, out.String(), "covenantctl bond create")
}

func TestKeyCommands(t *testing.T) {
	h := newHarness(t)
	alice := h.key("alice", 1, "", 0)
	holder := h.key("alice2", 1, "holder", 0)
	assert.Len(t, alice.PubKey, 66)
	assert.Equal(t, "holder", holder.Role)

	out := h.ok("key", "list")
	assert.Equal(t, "alice\nalice2\tholder\n", out)

	wif := strings.TrimSpace(h.ok("key", "export", "--name", "alice", "--wif"))
	out = h.ok("key", "import", "--name", "copy", "--wif", wif)
	var imported keys.Info
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	assert.Equal(t, alice.PubKey, imported.PubKey)

	code, _, errOut := h.run("key", "init", "--name", "alice")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")
}

func TestBondLifecycle(t *testing.T) {
	h := newHarness(t)
	holder := h.key("alice", 1, "holder", 20000)
	h.key("bob", 2, "slasher", 0)
	treasury := h.key("carol", 3, "", 0)

	out := h.ok("bond", "create",
		"--holder", "alice:holder", "--slasher", "bob:slasher", "--slash-to", treasury.Address,
		"--lock", "100", "--amount", "10000", "--payer", "alice:holder", "--fee", "400")
	rec := decodeRecord(t, out)
	assert.Equal(t, contract.KindBond, rec.Kind)
	assert.Equal(t, contract.StateOpen, rec.Status)
	assert.Equal(t, uint32(100), rec.LockHeight)
	assert.Equal(t, int64(10000), rec.Amount)
	p, ok := rec.Participant(deploy.RoleHolder)
	require.True(t, ok)
	assert.Equal(t, holder.PubKey, p.PubKey)

	// Still locked at height 90.
	code, _, errOut := h.run("bond", "release", "--id", rec.ID, "--key", "alice:holder", "--fee", "300")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "still locked")

	// The slasher's key cannot release.
	h.ledger.SetHeight(100)
	code, _, errOut = h.run("bond", "release", "--id", rec.ID, "--key", "bob:slasher", "--fee", "300")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "TXB-ROLE-701")

	out = h.ok("bond", "release", "--id", rec.ID, "--key", "alice:holder", "--fee", "300")
	var res spendResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(9700), res.Payout)
	assert.Equal(t, contract.StateReleased, res.Record.Status)
	assert.Equal(t, res.Txid, res.Record.SpendTxid)

	code, _, errOut = h.run("bond", "slash", "--id", rec.ID, "--key", "bob:slasher")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already spent")

	status := decodeRecord(t, h.ok("bond", "status", "--id", rec.ID))
	assert.Equal(t, contract.StateReleased, status.Status)

	var list []deploy.Record
	require.NoError(t, json.Unmarshal([]byte(h.ok("bond", "list")), &list))
	require.Len(t, list, 1)
	require.NoError(t, json.Unmarshal([]byte(h.ok("escrow", "list")), &list))
	assert.Empty(t, list)

	code, _, _ = h.run("escrow", "status", "--id", rec.ID, "--offline")
	assert.Equal(t, 1, code)
}

func TestEscrowRefundAndStatusFromChain(t *testing.T) {
	h := newHarness(t)
	h.key("req", 4, "requester", 25000)
	h.key("wrk", 5, "worker", 0)

	rec := decodeRecord(t, h.ok("escrow", "create",
		"--requester", "req:requester", "--worker", "wrk:worker", "--timeout", "500",
		"--amount", "0.0002", "--payer", "req:requester"))
	assert.Equal(t, int64(20000), rec.Amount)
	assert.Equal(t, uint32(500), rec.TimeoutHeight)

	code, _, errOut := h.run("escrow", "timeout", "--id", rec.ID, "--key", "req:requester")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "still locked")

	raw := strings.TrimSpace(h.ok("escrow", "refund", "--id", rec.ID, "--key", "wrk:worker", "--fee", "300", "--dry-run"))
	assert.NotEmpty(t, raw)
	offline := decodeRecord(t, h.ok("escrow", "status", "--id", rec.ID, "--offline"))
	assert.Equal(t, contract.StateOpen, offline.Status)

	var res spendResult
	require.NoError(t, json.Unmarshal([]byte(h.ok("escrow", "refund", "--id", rec.ID, "--key", "wrk:worker", "--fee", "300")), &res))
	assert.Equal(t, int64(19700), res.Payout)
	assert.Equal(t, contract.StateRefunded, res.Record.Status)
}

func TestAssertionWeightFollowsBond(t *testing.T) {
	h := newHarness(t)
	h.key("alice", 1, "holder", 20000)
	h.key("bob", 2, "slasher", 0)
	treasury := h.key("carol", 3, "", 0)
	h.key("oracle", 6, "", 5000)

	bond := decodeRecord(t, h.ok("bond", "create",
		"--holder", "alice:holder", "--slasher", "bob:slasher", "--slash-to", treasury.Address,
		"--lock", "100", "--amount", "10000", "--payer", "alice:holder"))

	var created assertionView
	require.NoError(t, json.Unmarshal([]byte(h.ok("assert", "create",
		"--bond", bond.Txid, "--topic", "price/BCHUSD", "--claim", "412.50", "--key", "oracle", "--fee", "300")), &created))
	assert.True(t, created.Valid)
	assert.Equal(t, bond.Txid, created.BondTxid)

	var verified assertionView
	require.NoError(t, json.Unmarshal([]byte(h.ok("assert", "verify", "--txid", created.Txid)), &verified))
	assert.Equal(t, created.Signer, verified.Signer)

	var w weightView
	require.NoError(t, json.Unmarshal([]byte(h.ok("assert", "weight", "--txid", created.Txid)), &w))
	assert.True(t, w.Backed)
	assert.Equal(t, bond.Vout, w.BondVout)
	assert.Equal(t, int64(10000), w.Effective)

	h.ok("bond", "slash", "--id", bond.ID, "--key", "bob:slasher")

	require.NoError(t, json.Unmarshal([]byte(h.ok("assert", "weight", "--txid", created.Txid)), &w))
	assert.False(t, w.Backed)
	assert.Zero(t, w.Effective)
	assert.Equal(t, contract.StateSlashed, w.Outcome)
	assert.Equal(t, int64(10000), w.BondValue)
}

func TestContractDecode(t *testing.T) {
	h := newHarness(t)
	req := h.key("req", 4, "", 0)
	wrk := h.key("wrk", 5, "", 0)
	rp, err := keys.ParsePubKey(req.PubKey)
	require.NoError(t, err)
	wp, err := keys.ParsePubKey(wrk.PubKey)
	require.NoError(t, err)
	e, err := contract.NewEscrow(rp, wp, 500)
	require.NoError(t, err)

	var v contractView
	require.NoError(t, json.Unmarshal([]byte(h.ok("contract", "decode", hex.EncodeToString(e.RedeemScript()))), &v))
	assert.Equal(t, contract.KindEscrow, v.Kind)
	assert.Equal(t, uint32(500), v.TimeoutHeight)
	assert.Equal(t, []contract.Operation{contract.OpApprove, contract.OpRefund, contract.OpTimeout}, v.Operations)
	want, err := contract.Address(e, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.Equal(t, want, v.Address)

	code, _, errOut := h.run("contract", "decode", "51")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "COV-DEC-101")
}

func TestStoreExportImport(t *testing.T) {
	h := newHarness(t)
	h.key("alice", 1, "requester", 30000)
	h.key("bob", 2, "worker", 0)
	rec := decodeRecord(t, h.ok("escrow", "create",
		"--requester", "alice:requester", "--worker", "bob:worker",
		"--timeout", "500", "--amount", "20000", "--payer", "alice:requester"))

	bundlePath := filepath.Join(t.TempDir(), "backup.tar")
	var sum deploy.BackupSummary
	require.NoError(t, json.Unmarshal([]byte(h.ok("store", "export", "--out", bundlePath)), &sum))
	assert.Equal(t, deploy.BackupSummary{Records: 1, Transactions: 1}, sum)

	// Refuses to overwrite an existing bundle.
	code, _, _ := h.run("store", "export", "--out", bundlePath)
	assert.Equal(t, 1, code)

	t.Setenv("COVENANTS_DATA_DIR", t.TempDir())
	code, _, _ = h.run("escrow", "status", "--id", rec.ID, "--offline")
	assert.Equal(t, 1, code)

	require.NoError(t, json.Unmarshal([]byte(h.ok("store", "import", "--in", bundlePath)), &sum))
	assert.Equal(t, deploy.BackupSummary{Records: 1, Transactions: 1}, sum)
	restored := decodeRecord(t, h.ok("escrow", "status", "--id", rec.ID, "--offline"))
	assert.Equal(t, rec.Address, restored.Address)

	code, _, _ = h.run("store", "import")
	assert.Equal(t, 2, code)
}
