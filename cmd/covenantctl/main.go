// Command covenantctl creates, spends and inspects bond and escrow covenants
// and publishes bond-backed assertions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	switch args[0] {
	case "key":
		return cmdKey(ctx, args[1:], out, errOut)
	case "bond":
		return cmdCovenant(ctx, bondCommands, args[1:], out, errOut)
	case "escrow":
		return cmdCovenant(ctx, escrowCommands, args[1:], out, errOut)
	case "assert":
		return cmdAssert(ctx, args[1:], out, errOut)
	case "contract":
		return cmdContract(ctx, args[1:], out, errOut)
	case "store":
		return cmdStore(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "covenantctl: covenant bonds, escrows and assertions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  covenantctl key init --name <name> [--secret-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  covenantctl key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  covenantctl key import --name <name> --wif <wif> [--force]")
	fmt.Fprintln(w, "  covenantctl key export --name <name> [--role <role>] [--wif]")
	fmt.Fprintln(w, "  covenantctl key list")
	fmt.Fprintln(w, "  covenantctl bond create --holder <key> --slasher <key> --slash-to <address> --lock <height> --amount <amt> --payer <key>")
	fmt.Fprintln(w, "  covenantctl bond release|slash --id <record> --key <key> [--amount <amt>]")
	fmt.Fprintln(w, "  covenantctl bond status|list [--id <record>]")
	fmt.Fprintln(w, "  covenantctl escrow create --requester <key> --worker <key> --timeout <height> --amount <amt> --payer <key>")
	fmt.Fprintln(w, "  covenantctl escrow approve|refund|timeout --id <record> --key <key> [--amount <amt>]")
	fmt.Fprintln(w, "  covenantctl escrow status|list [--id <record>]")
	fmt.Fprintln(w, "  covenantctl assert create --bond <txid> --topic <t> --claim <c> --key <key>")
	fmt.Fprintln(w, "  covenantctl assert verify|weight --txid <txid>")
	fmt.Fprintln(w, "  covenantctl contract decode <redeem-script-hex>")
	fmt.Fprintln(w, "  covenantctl store export --out <file.tar> | import --in <file.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <key> is a stored key (name or name:role), a key file path, or for participants a hex public key")
	fmt.Fprintln(w, "  - amounts are satoshis, or coins when written with a decimal point or a bch suffix")
	fmt.Fprintln(w, "  - chain-facing commands accept --config, --network, --oracle, --fee and the oracle backend flags")
	fmt.Fprintln(w, "  - exit status is 1 for a failed operation and 2 for a usage error")
}
