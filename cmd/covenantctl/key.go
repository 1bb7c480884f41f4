package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"xdao.co/covenants/keys"
)

func cmdKey(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(ctx, args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(ctx, args[1:], out, errOut)
	case "import":
		return cmdKeyImport(ctx, args[1:], out, errOut)
	case "export":
		return cmdKeyExport(ctx, args[1:], out, errOut)
	case "list":
		return cmdKeyList(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: covenantctl key <subcommand> ...")
	fmt.Fprintln(w, "subcommands: init, derive, import, export, list")
}

func cmdKeyInit(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("key init", errOut)
	var name, secretHex string
	var force bool
	c.fs.StringVar(&name, "name", "", "Key name")
	c.fs.StringVar(&secretHex, "secret-hex", "", "Use this 32-byte hex secret instead of generating one")
	c.fs.BoolVar(&force, "force", false, "Overwrite an existing key")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "usage: covenantctl key init --name <name> [--secret-hex <64hex>] [--force]")
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	var path string
	if secretHex != "" {
		k, err := keys.ParseSecretHex(secretHex)
		if err != nil {
			return fail(errOut, "key init", err)
		}
		path, err = s.keys.Init(name, k, force)
		if err != nil {
			return fail(errOut, "key init", err)
		}
	} else if _, path, err = s.keys.Generate(name, force); err != nil {
		return fail(errOut, "key init", err)
	}
	return s.exportKey(name, "", path)
}

func cmdKeyDerive(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("key derive", errOut)
	var from, role string
	var force bool
	c.fs.StringVar(&from, "from", "", "Root key name")
	c.fs.StringVar(&role, "role", "", "Role to derive (holder, slasher, requester, worker, ...)")
	c.fs.BoolVar(&force, "force", false, "Overwrite an existing role key")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if from == "" || role == "" {
		fmt.Fprintln(errOut, "usage: covenantctl key derive --from <name> --role <role> [--force]")
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	_, path, err := s.keys.Derive(from, role, force)
	if err != nil {
		return fail(errOut, "key derive", err)
	}
	return s.exportKey(from, role, path)
}

func cmdKeyImport(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("key import", errOut)
	var name, wif string
	var force bool
	c.fs.StringVar(&name, "name", "", "Key name")
	c.fs.StringVar(&wif, "wif", "", "Private key in wallet import format")
	c.fs.BoolVar(&force, "force", false, "Overwrite an existing key")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if name == "" || wif == "" {
		fmt.Fprintln(errOut, "usage: covenantctl key import --name <name> --wif <wif> [--force]")
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	_, path, err := s.keys.ImportWIF(name, wif, s.net, force)
	if err != nil {
		return fail(errOut, "key import", err)
	}
	return s.exportKey(name, "", path)
}

func cmdKeyExport(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("key export", errOut)
	var name, role string
	var wif bool
	c.fs.StringVar(&name, "name", "", "Key name")
	c.fs.StringVar(&role, "role", "", "Role key to export instead of the root key")
	c.fs.BoolVar(&wif, "wif", false, "Print the private key in wallet import format")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "usage: covenantctl key export --name <name> [--role <role>] [--wif]")
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	if wif {
		k, err := s.keys.Load(name, role)
		if err != nil {
			return fail(errOut, "key export", err)
		}
		w, err := keys.EncodeWIF(k, s.net)
		if err != nil {
			return fail(errOut, "key export", err)
		}
		fmt.Fprintln(out, w)
		return 0
	}
	return s.exportKey(name, role, "")
}

func cmdKeyList(ctx context.Context, args []string, out, errOut io.Writer) int {
	c := newCommon("key list", errOut)
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	s, err := c.open(ctx, out, errOut)
	if err != nil {
		return fail(errOut, "config", err)
	}
	defer s.Close()

	entries, err := s.keys.List()
	if err != nil {
		return fail(errOut, "key list", err)
	}
	for _, e := range entries {
		if len(e.Roles) == 0 {
			fmt.Fprintln(out, e.Name)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", e.Name, strings.Join(e.Roles, ","))
	}
	return 0
}

func (s *session) exportKey(name, role, path string) int {
	info, err := s.keys.Export(name, role, s.net)
	if err != nil {
		return fail(s.errOut, "key export", err)
	}
	if path != "" {
		s.log.Info("key written", "name", name, "role", role, "path", path)
	}
	if err := s.printJSON(info); err != nil {
		return fail(s.errOut, "output", err)
	}
	return 0
}
