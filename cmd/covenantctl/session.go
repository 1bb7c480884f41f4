package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/oracleregistry"
	"xdao.co/covenants/config"
	"xdao.co/covenants/deploy"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/internal/logging"
	"xdao.co/covenants/keys"

	_ "xdao.co/covenants/chain/grpcoracle"
	_ "xdao.co/covenants/chain/httporacle"
	_ "xdao.co/covenants/chain/memchain"
)

// openOracle is replaced in tests to share one ledger across invocations.
var openOracle = oracleregistry.Open

// common holds the flags every chain-facing subcommand accepts.
type common struct {
	fs         *flag.FlagSet
	configPath string
	oracle     string
	fee        int64
	network    string
}

func newCommon(name string, errOut io.Writer) *common {
	c := &common{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.fs.SetOutput(errOut)
	c.fs.StringVar(&c.configPath, "config", os.Getenv("COVENANTS_CONFIG"), "YAML config file")
	c.fs.StringVar(&c.oracle, "oracle", "", "Chain oracle backend (overrides config): "+strings.Join(oracleregistry.Names(oracleregistry.UsageCLI), ", "))
	c.fs.Int64Var(&c.fee, "fee", 0, "Fee in satoshis (overrides config)")
	c.fs.StringVar(&c.network, "network", "", "Network (overrides config): "+strings.Join(chain.Networks, ", "))
	oracleregistry.RegisterFlags(c.fs, oracleregistry.UsageCLI)
	return c
}

// session is everything a subcommand needs after flag parsing.
type session struct {
	ctx    context.Context
	cfg    config.Config
	net    *chaincfg.Params
	log    *slog.Logger
	keys   *keys.KeyStore
	out    io.Writer
	errOut io.Writer

	store       *deploy.Store
	oracle      chain.Oracle
	closeOracle func() error
}

// open loads configuration. The record store and oracle are opened on demand.
func (c *common) open(ctx context.Context, out, errOut io.Writer) (*session, error) {
	cfg, err := config.Load(c.configPath, os.Environ())
	if err != nil {
		return nil, err
	}
	if c.oracle != "" {
		cfg.Oracle.Backend = c.oracle
	}
	if c.fee != 0 {
		cfg.Fee = c.fee
	}
	if c.network != "" {
		cfg.Network = c.network
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := oracleregistry.ApplyOptions(c.fs, cfg.Oracle.Options); err != nil {
		return nil, err
	}
	log, err := logging.New(errOut, cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		return nil, err
	}
	ks, err := keys.Open(cfg.KeyDir)
	if err != nil {
		return nil, err
	}
	return &session{ctx: ctx, cfg: cfg, net: cfg.Params(), log: log, keys: ks, out: out, errOut: errOut}, nil
}

func (s *session) Store() (*deploy.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	st, err := deploy.OpenDir(s.ctx, s.cfg.StoreDir(), s.cfg.Mirrors, deploy.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.store = st
	return st, nil
}

func (s *session) Oracle() (chain.Oracle, error) {
	if s.oracle != nil {
		return s.oracle, nil
	}
	o, closeFn, err := openOracle(s.cfg.Oracle.Backend, oracleregistry.UsageCLI)
	if err != nil {
		return nil, err
	}
	s.oracle, s.closeOracle = o, closeFn
	s.log.Debug("oracle opened", "backend", s.cfg.Oracle.Backend, "network", s.cfg.Network)
	return o, nil
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.closeOracle != nil {
		_ = s.closeOracle()
	}
}

// signer loads the private key named by ref: "name" for a root key or
// "name:role" for a derived role key. A ref containing a path separator is
// read as a key file.
func (s *session) signer(ref string) (*btcec.PrivateKey, error) {
	if ref == "" {
		return nil, errors.New("no signing key given")
	}
	if strings.ContainsRune(ref, os.PathSeparator) {
		return keys.LoadFile(ref)
	}
	name, role, _ := strings.Cut(ref, ":")
	return s.keys.Load(name, role)
}

// pubKey accepts a hex public key or a key reference as for signer.
func (s *session) pubKey(ref string) (*btcec.PublicKey, error) {
	if pub, err := keys.ParsePubKey(ref); err == nil {
		return pub, nil
	}
	k, err := s.signer(ref)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a public key nor a stored key: %w", ref, err)
	}
	return k.PubKey(), nil
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail reports err and returns the runtime-failure exit code.
func fail(errOut io.Writer, what string, err error) int {
	if id := faults.RuleID(err); id != "" {
		fmt.Fprintf(errOut, "%s: [%s] %v\n", what, id, err)
	} else {
		fmt.Fprintf(errOut, "%s: %v\n", what, err)
	}
	return 1
}
