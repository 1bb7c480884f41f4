package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"xdao.co/covenants/assertion"
	"xdao.co/covenants/chain"
	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/txbuild"
	"xdao.co/covenants/units"
)

func cmdAssert(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: covenantctl assert <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: create, verify, weight")
		return 2
	}
	switch args[0] {
	case "create":
		return cmdAssertCreate(ctx, args[1:], out, errOut)
	case "verify":
		return cmdAssertInspect(ctx, "verify", args[1:], out, errOut)
	case "weight":
		return cmdAssertInspect(ctx, "weight", args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown assert subcommand: %s\n", args[0])
		return 2
	}
}

type assertionView struct {
	Txid      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	BondTxid  string `json:"bond_txid"`
	Topic     string `json:"topic"`
	Claim     string `json:"claim"`
	Signer    string `json:"signer"`
	Valid     bool   `json:"valid"`
	Signature string `json:"signature"`
}

type weightView struct {
	assertionView
	Backed    bool           `json:"backed"`
	BondVout  uint32         `json:"bond_vout"`
	BondValue int64          `json:"bond_value"`
	Effective int64          `json:"effective"`
	Display   string         `json:"effective_display"`
	Outcome   contract.State `json:"outcome"`
	SpentBy   string         `json:"spent_by,omitempty"`
}

func viewOf(a *assertion.Assertion) assertionView {
	return assertionView{
		Txid:      a.Txid.String(),
		Vout:      a.Vout,
		BondTxid:  a.BondTxid.String(),
		Topic:     a.Topic,
		Claim:     a.Claim,
		Signer:    hex.EncodeToString(a.Signer.SerializeCompressed()),
		Valid:     a.Valid(),
		Signature: hex.EncodeToString(a.Signature),
	}
}

func cmdAssertCreate(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("assert create", errOut)
	var bond, topic, claim, keyRef string
	var dryRun bool
	c.fs.StringVar(&bond, "bond", "", "Txid of the bond backing the assertion")
	c.fs.StringVar(&topic, "topic", "", "Assertion topic")
	c.fs.StringVar(&claim, "claim", "", "Assertion claim")
	c.fs.StringVar(&keyRef, "key", "", "Asserter key; its wallet outputs pay the fee")
	c.fs.BoolVar(&dryRun, "dry-run", false, "Print the signed transaction instead of broadcasting it")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if bond == "" || topic == "" || keyRef == "" {
		fmt.Fprintln(errOut, "usage: covenantctl assert create --bond <txid> --topic <t> --claim <c> --key <key>")
		return 2
	}
	bondTxid, err := parseTxid(bond)
	if err != nil {
		fmt.Fprintf(errOut, "--bond: %v\n", err)
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	priv, err := s.signer(keyRef)
	if err != nil {
		return fail(errOut, "--key", err)
	}
	rec, err := assertion.Sign(bondTxid, topic, claim, priv)
	if err != nil {
		return fail(errOut, "assert", err)
	}
	script, err := rec.Script()
	if err != nil {
		return fail(errOut, "assert", err)
	}
	o, err := s.Oracle()
	if err != nil {
		return fail(errOut, "oracle", err)
	}

	pkh := contract.PubKeyHash(priv.PubKey())
	addr, err := btcutil.NewAddressPubKeyHash(pkh[:], s.net)
	if err != nil {
		return fail(errOut, "--key", err)
	}
	utxos, err := o.Unspent(ctx, addr.EncodeAddress())
	if err != nil {
		return fail(errOut, "wallet", err)
	}
	p, err := txbuild.NewDataCarrier(txbuild.WalletInputs(utxos, commit.P2PKHScript(pkh)), script, s.cfg.Fee, pkh)
	if err != nil {
		return fail(errOut, "assert", err)
	}
	if err := p.Sign(priv); err != nil {
		return fail(errOut, "sign", err)
	}
	if dryRun {
		return s.printRaw(p.Tx)
	}
	txid, err := chain.Broadcast(ctx, o, p.Tx)
	if err != nil {
		return fail(errOut, "broadcast", err)
	}
	if st, err := s.Store(); err == nil {
		if _, err := st.ArchiveTx(ctx, p.Tx); err != nil {
			s.log.Warn("archive failed", "txid", txid.String(), "err", err)
		}
	}
	a, err := assertion.FromTx(p.Tx)
	if err != nil {
		return fail(errOut, "assert", err)
	}
	s.log.Info("assertion published", "txid", txid.String(), "bond", bondTxid.String(), "topic", topic)
	if err := s.printJSON(viewOf(a)); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

// cmdAssertInspect serves verify and weight. verify exits 1 for an invalid
// signature; weight always reports the current backing.
func cmdAssertInspect(ctx context.Context, mode string, args []string, out, errOut io.Writer) int {
	c := newCommon("assert "+mode, errOut)
	var txidStr string
	c.fs.StringVar(&txidStr, "txid", "", "Txid of the assertion transaction")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if txidStr == "" {
		fmt.Fprintf(errOut, "usage: covenantctl assert %s --txid <txid>\n", mode)
		return 2
	}
	txid, err := parseTxid(txidStr)
	if err != nil {
		fmt.Fprintf(errOut, "--txid: %v\n", err)
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	o, err := s.Oracle()
	if err != nil {
		return fail(errOut, "oracle", err)
	}
	tx, err := chain.FetchTx(ctx, o, txid)
	if err != nil {
		return fail(errOut, "fetch", err)
	}
	a, err := assertion.FromTx(tx)
	if err != nil {
		return fail(errOut, "assert", err)
	}

	if mode == "verify" {
		v := viewOf(a)
		if err := s.printJSON(v); err != nil {
			return fail(errOut, "output", err)
		}
		if !v.Valid {
			fmt.Fprintln(errOut, "assert verify: signature does not match the transaction signer")
			return 1
		}
		return 0
	}

	// Deployment records pin the bond output and its script when present.
	var bonds assertion.Bonds
	if st, err := s.Store(); err == nil {
		bonds = st
	}
	w, err := assertion.Resolve(ctx, o, bonds, a)
	if err != nil {
		return fail(errOut, "weight", err)
	}
	view := weightView{
		assertionView: viewOf(a),
		Backed:        w.Backed,
		BondVout:      w.Vout,
		BondValue:     w.Value,
		Effective:     w.Effective(),
		Display:       units.Format(w.Effective()),
		Outcome:       w.Outcome,
	}
	if w.SpentBy != (chainhash.Hash{}) {
		view.SpentBy = w.SpentBy.String()
	}
	if err := s.printJSON(view); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}
