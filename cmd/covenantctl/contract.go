package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/contract"
	"xdao.co/covenants/deploy"
)

type contractView struct {
	Kind          contract.Kind        `json:"kind"`
	Address       string               `json:"address"`
	ScriptHash    string               `json:"script_hash"`
	LockHeight    uint32               `json:"lock_height,omitempty"`
	TimeoutHeight uint32               `json:"timeout_height,omitempty"`
	Participants  []deploy.Participant `json:"participants"`
	SlashAddress  string               `json:"slash_address,omitempty"`
	Operations    []contract.Operation `json:"operations"`
}

func cmdContract(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "decode" {
		fmt.Fprintln(errOut, "usage: covenantctl contract decode <redeem-script-hex>")
		return 2
	}
	c := newCommon("contract decode", errOut)
	if err := c.fs.Parse(args[1:]); err != nil {
		return 2
	}
	if c.fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: covenantctl contract decode <redeem-script-hex>")
		return 2
	}
	redeem, err := hex.DecodeString(strings.TrimSpace(c.fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(errOut, "script is not hex: %v\n", err)
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	cov, err := contract.Decode(redeem)
	if err != nil {
		return fail(errOut, "decode", err)
	}
	// A record with no outpoint carries the derived addresses and roles.
	rec, err := deploy.NewRecord(cov, s.net, wire.OutPoint{}, 0, 0, time.Time{})
	if err != nil {
		return fail(errOut, "decode", err)
	}
	h := contract.ScriptHash(cov)
	view := contractView{
		Kind:          cov.Kind(),
		Address:       rec.Address,
		ScriptHash:    hex.EncodeToString(h[:]),
		LockHeight:    rec.LockHeight,
		TimeoutHeight: rec.TimeoutHeight,
		Participants:  rec.Participants,
		SlashAddress:  rec.SlashAddress,
		Operations:    cov.Operations(),
	}
	if err := s.printJSON(view); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}
