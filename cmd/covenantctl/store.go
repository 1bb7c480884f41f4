package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func cmdStore(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printStoreUsage(errOut)
		return 2
	}
	switch args[0] {
	case "export":
		return cmdStoreExport(ctx, args[1:], out, errOut)
	case "import":
		return cmdStoreImport(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printStoreUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n\n", args[0])
		printStoreUsage(errOut)
		return 2
	}
}

func printStoreUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: covenantctl store <subcommand> ...")
	fmt.Fprintln(w, "subcommands: export --out <file.tar>, import --in <file.tar>")
}

func cmdStoreExport(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("store export", errOut)
	var path string
	c.fs.StringVar(&path, "out", "", "Write the bundle to this file")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		fmt.Fprintln(errOut, "usage: covenantctl store export --out <file.tar>")
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

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fail(errOut, "store export", err)
	}
	sum, err := st.Export(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fail(errOut, "store export", err)
	}
	if err := s.printJSON(sum); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}

func cmdStoreImport(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("store import", errOut)
	var path string
	c.fs.StringVar(&path, "in", "", "Read the bundle from this file")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		fmt.Fprintln(errOut, "usage: covenantctl store import --in <file.tar>")
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

	f, err := os.Open(path)
	if err != nil {
		return fail(errOut, "store import", err)
	}
	defer f.Close()
	sum, err := st.Import(ctx, f)
	if err != nil {
		return fail(errOut, "store import", err)
	}
	if err := s.printJSON(sum); err != nil {
		return fail(errOut, "output", err)
	}
	return 0
}
