package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/commit"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/deploy"
	"xdao.co/covenants/txbuild"
	"xdao.co/covenants/units"
)

// covenantKind wires the generic create/spend/status commands to one
// contract kind.
type covenantKind struct {
	kind        contract.Kind
	createUsage string
	// bind registers the kind's constructor flags and returns the
	// constructor to run once they are parsed.
	bind func(fs *flag.FlagSet) func(s *session) (contract.Contract, error)
}

var bondCommands = covenantKind{
	kind:        contract.KindBond,
	createUsage: "covenantctl bond create --holder <key> --slasher <key> --slash-to <address|key> --lock <height> --amount <amt> --payer <key>",
	bind: func(fs *flag.FlagSet) func(s *session) (contract.Contract, error) {
		holder := fs.String("holder", "", "Holder public key or key reference")
		slasher := fs.String("slasher", "", "Slasher public key or key reference")
		slashTo := fs.String("slash-to", "", "Address (or key) slashed value is paid to")
		lock := fs.Uint("lock", 0, "Block height before which the holder cannot release")
		return func(s *session) (contract.Contract, error) {
			h, err := s.pubKey(*holder)
			if err != nil {
				return nil, fmt.Errorf("--holder: %w", err)
			}
			sl, err := s.pubKey(*slasher)
			if err != nil {
				return nil, fmt.Errorf("--slasher: %w", err)
			}
			dest, err := s.pubKeyHash(*slashTo)
			if err != nil {
				return nil, fmt.Errorf("--slash-to: %w", err)
			}
			return contract.NewBond(h, uint32(*lock), sl, dest)
		}
	},
}

var escrowCommands = covenantKind{
	kind:        contract.KindEscrow,
	createUsage: "covenantctl escrow create --requester <key> --worker <key> --timeout <height> --amount <amt> --payer <key>",
	bind: func(fs *flag.FlagSet) func(s *session) (contract.Contract, error) {
		requester := fs.String("requester", "", "Requester public key or key reference")
		worker := fs.String("worker", "", "Worker public key or key reference")
		timeout := fs.Uint("timeout", 0, "Block height from which the requester may reclaim")
		return func(s *session) (contract.Contract, error) {
			r, err := s.pubKey(*requester)
			if err != nil {
				return nil, fmt.Errorf("--requester: %w", err)
			}
			w, err := s.pubKey(*worker)
			if err != nil {
				return nil, fmt.Errorf("--worker: %w", err)
			}
			return contract.NewEscrow(r, w, uint32(*timeout))
		}
	},
}

func cmdCovenant(ctx context.Context, k covenantKind, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(errOut, "usage: covenantctl %s <subcommand> ...\n", k.kind)
		fmt.Fprintf(errOut, "subcommands: create, status, list, %s\n", joinOps(k.kind))
		return 2
	}
	switch args[0] {
	case "create":
		return cmdCreate(ctx, k, args[1:], out, errOut)
	case "status":
		return cmdStatus(ctx, k, args[1:], out, errOut)
	case "list":
		return cmdList(ctx, k, args[1:], out, errOut)
	}
	op, err := contract.ParseOperation(k.kind, args[0])
	if err != nil {
		fmt.Fprintf(errOut, "unknown %s subcommand: %s\n", k.kind, args[0])
		return 2
	}
	return cmdSpend(ctx, k, op, args[1:], out, errOut)
}

func joinOps(kind contract.Kind) string {
	var names []string
	for _, op := range contract.KindOperations(kind) {
		names = append(names, string(op))
	}
	return strings.Join(names, ", ")
}

func cmdCreate(ctx context.Context, k covenantKind, args []string, out, errOut io.Writer) int {
	c := newCommon(string(k.kind)+" create", errOut)
	build := k.bind(c.fs)
	var amountStr, payerRef string
	var dryRun bool
	c.fs.StringVar(&amountStr, "amount", "", "Value to lock")
	c.fs.StringVar(&payerRef, "payer", "", "Key whose wallet outputs fund the covenant (change returns to it)")
	c.fs.BoolVar(&dryRun, "dry-run", false, "Print the signed funding transaction instead of broadcasting it")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if amountStr == "" || payerRef == "" {
		fmt.Fprintln(errOut, "usage: "+k.createUsage)
		return 2
	}
	amount, err := units.ParseAmount(amountStr)
	if err != nil {
		fmt.Fprintf(errOut, "--amount: %v\n", err)
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	cov, err := build(s)
	if err != nil {
		return fail(errOut, string(k.kind), err)
	}
	payer, err := s.signer(payerRef)
	if err != nil {
		return fail(errOut, "--payer", err)
	}
	o, err := s.Oracle()
	if err != nil {
		return fail(errOut, "oracle", err)
	}

	payerHash := contract.PubKeyHash(payer.PubKey())
	payerAddr, err := btcutil.NewAddressPubKeyHash(payerHash[:], s.net)
	if err != nil {
		return fail(errOut, "--payer", err)
	}
	utxos, err := o.Unspent(ctx, payerAddr.EncodeAddress())
	if err != nil {
		return fail(errOut, "wallet", err)
	}
	p, err := txbuild.NewFunding(txbuild.WalletInputs(utxos, commit.P2PKHScript(payerHash)), contract.LockingScript(cov), amount, s.cfg.Fee, payerHash)
	if err != nil {
		return fail(errOut, "fund", err)
	}
	if err := p.Sign(payer); err != nil {
		return fail(errOut, "sign", err)
	}
	if dryRun {
		return s.printRaw(p.Tx)
	}

	txid, err := chain.Broadcast(ctx, o, p.Tx)
	if err != nil {
		return fail(errOut, "broadcast", err)
	}
	st, err := s.Store()
	if err != nil {
		return fail(errOut, "store", err)
	}
	if _, err := st.ArchiveTx(ctx, p.Tx); err != nil {
		s.log.Warn("archive failed", "txid", txid.String(), "err", err)
	}
	height, err := o.Height(ctx)
	if err != nil {
		return fail(errOut, "oracle", err)
	}
	rec, err := deploy.NewRecord(cov, s.net, wire.OutPoint{Hash: txid, Index: 0}, amount, height, time.Now())
	if err != nil {
		return fail(errOut, "record", err)
	}
	if _, err := st.Save(ctx, rec); err != nil {
		return fail(errOut, "record", err)
	}
	s.log.Info("covenant created", "kind", k.kind, "txid", txid.String(), "address", rec.Address, "amount", units.Format(amount))
	if err := s.printJSON(rec); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

type spendResult struct {
	Record *deploy.Record `json:"record"`
	Txid   string         `json:"txid"`
	Payout int64          `json:"payout"`
	Fee    int64          `json:"fee"`
}

func cmdSpend(ctx context.Context, k covenantKind, op contract.Operation, args []string, out, errOut io.Writer) int {
	c := newCommon(fmt.Sprintf("%s %s", k.kind, op), errOut)
	var id, keyRef, amountStr string
	var dryRun bool
	c.fs.StringVar(&id, "id", "", "Record id of the covenant")
	c.fs.StringVar(&keyRef, "key", "", "Key of the participant entitled to "+string(op))
	c.fs.StringVar(&amountStr, "amount", "", "Payout (default: covenant value less fee)")
	c.fs.BoolVar(&dryRun, "dry-run", false, "Print the signed spend instead of broadcasting it")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if id == "" || keyRef == "" {
		fmt.Fprintf(errOut, "usage: covenantctl %s %s --id <record> --key <key> [--amount <amt>]\n", k.kind, op)
		return 2
	}
	var amount int64
	if amountStr != "" {
		var err error
		if amount, err = units.ParseAmount(amountStr); err != nil {
			fmt.Fprintf(errOut, "--amount: %v\n", err)
			return 2
		}
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	st, err := s.Store()
	if err != nil {
		return fail(errOut, "store", err)
	}
	rec, err := st.Load(ctx, id)
	if err != nil {
		return fail(errOut, "record", err)
	}
	if rec.Kind != k.kind {
		return fail(errOut, "record", fmt.Errorf("%s is a %s, not a %s", id, rec.Kind, k.kind))
	}
	cov, err := rec.Contract()
	if err != nil {
		return fail(errOut, "record", err)
	}
	outpoint, err := rec.OutPoint()
	if err != nil {
		return fail(errOut, "record", err)
	}
	priv, err := s.signer(keyRef)
	if err != nil {
		return fail(errOut, "--key", err)
	}
	o, err := s.Oracle()
	if err != nil {
		return fail(errOut, "oracle", err)
	}

	if err := chain.RequireUnspent(ctx, o, outpoint); err != nil {
		return fail(errOut, string(op), err)
	}
	funding, err := chain.FetchTx(ctx, o, outpoint.Hash)
	if err != nil {
		return fail(errOut, "funding", err)
	}
	var lockTime uint32
	if cov.Threshold(op) > 0 {
		if lockTime, err = o.Height(ctx); err != nil {
			return fail(errOut, "oracle", err)
		}
	}
	spend, err := txbuild.NewSpend(cov, funding, outpoint.Index, op, txbuild.SpendParams{Amount: amount, Fee: s.cfg.Fee, LockTime: lockTime})
	if err != nil {
		return fail(errOut, string(op), err)
	}
	if err := spend.Sign(priv); err != nil {
		return fail(errOut, string(op), err)
	}
	if dryRun {
		return s.printRaw(spend.Tx)
	}

	txid, err := chain.Broadcast(ctx, o, spend.Tx)
	if err != nil {
		return fail(errOut, "broadcast", err)
	}
	if _, err := st.ArchiveTx(ctx, spend.Tx); err != nil {
		s.log.Warn("archive failed", "txid", txid.String(), "err", err)
	}
	state, err := contract.StateAfter(op)
	if err != nil {
		return fail(errOut, string(op), err)
	}
	rec, err = st.MarkSpent(ctx, id, state, txid)
	if err != nil {
		return fail(errOut, "record", err)
	}
	s.log.Info("covenant spent", "kind", k.kind, "op", op, "txid", txid.String(), "payout", units.Format(spend.Amount))
	if err := s.printJSON(spendResult{Record: rec, Txid: txid.String(), Payout: spend.Amount, Fee: spend.Fee}); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

func cmdStatus(ctx context.Context, k covenantKind, args []string, out, errOut io.Writer) int {
	c := newCommon(string(k.kind)+" status", errOut)
	var id string
	var offline bool
	c.fs.StringVar(&id, "id", "", "Record id")
	c.fs.BoolVar(&offline, "offline", false, "Show the stored record without querying the chain")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		fmt.Fprintf(errOut, "usage: covenantctl %s status --id <record> [--offline]\n", k.kind)
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	st, err := s.Store()
	if err != nil {
		return fail(errOut, "store", err)
	}
	var rec *deploy.Record
	if offline {
		rec, err = st.Load(ctx, id)
	} else {
		var o chain.Oracle
		if o, err = s.Oracle(); err == nil {
			rec, err = st.Refresh(ctx, o, id)
		}
	}
	if err != nil {
		return fail(errOut, "status", err)
	}
	if rec.Kind != k.kind {
		return fail(errOut, "status", fmt.Errorf("%s is a %s, not a %s", id, rec.Kind, k.kind))
	}
	if err := s.printJSON(rec); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

func cmdList(ctx context.Context, k covenantKind, args []string, out, errOut io.Writer) int {
	c := newCommon(string(k.kind)+" list", errOut)
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	st, err := s.Store()
	if err != nil {
		return fail(errOut, "store", err)
	}
	recs, err := st.List(ctx, k.kind)
	if err != nil {
		return fail(errOut, "list", err)
	}
	if err := s.printJSON(recs); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

// pubKeyHash accepts a pay-to-public-key-hash address on the session network
// or anything pubKey accepts.
func (s *session) pubKeyHash(ref string) ([commit.HashSize]byte, error) {
	var h [commit.HashSize]byte
	if addr, err := btcutil.DecodeAddress(ref, s.net); err == nil {
		pkh, ok := addr.(*btcutil.AddressPubKeyHash)
		if !ok || !addr.IsForNet(s.net) {
			return h, fmt.Errorf("%s is not a pay-to-public-key-hash address on %s", ref, s.cfg.Network)
		}
		copy(h[:], pkh.ScriptAddress())
		return h, nil
	}
	pub, err := s.pubKey(ref)
	if err != nil {
		return h, err
	}
	return contract.PubKeyHash(pub), nil
}

func (s *session) printRaw(tx *wire.MsgTx) int {
	raw, err := chain.EncodeTx(tx)
	if err != nil {
		return fail(s.errOut, "encode", err)
	}
	fmt.Fprintln(s.out, hex.EncodeToString(raw))
	return 0
}

func parseTxid(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}
