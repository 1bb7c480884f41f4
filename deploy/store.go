package deploy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	_ "modernc.org/sqlite"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/internal/logging"
	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/localfs"
)

// ErrNotFound is returned (wrapped) when no record matches a lookup.
var ErrNotFound = errors.New("deploy: record not found")

// Store keeps record bytes in a CAS and an index of them in SQLite. Every
// save writes a new immutable object; the index points at the latest one.
type Store struct {
	cas storage.CAS
	db  *sql.DB
	log *slog.Logger

	// closers release what OpenDir opened.
	closers []func() error
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// New wraps an existing CAS and database and creates the index tables.
func New(ctx context.Context, cas storage.CAS, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{cas: cas, db: db}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrDiscard(s.log)
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("deploy: migrate index: %w", err)
	}
	return s, nil
}

// OpenDir opens the store kept under dir: objects in dir/objects and the
// index in dir/index.db. Each mirror spec (see OpenMirror) receives a copy
// of every object and serves reads the primary cannot.
func OpenDir(ctx context.Context, dir string, mirrors []string, opts ...Option) (*Store, error) {
	primary, err := localfs.New(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}
	var (
		cas     storage.CAS = primary
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	if len(mirrors) > 0 {
		m := storage.Mirror{Replicas: []storage.Replica{{Name: "primary", CAS: primary}}}
		for _, spec := range mirrors {
			r, closeFn, err := OpenMirror(spec)
			if err != nil {
				closeAll()
				return nil, err
			}
			if closeFn != nil {
				closers = append(closers, closeFn)
			}
			m.Replicas = append(m.Replicas, r)
		}
		cas = m
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("deploy: open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := New(ctx, cas, db, opts...)
	if err != nil {
		_ = db.Close()
		closeAll()
		return nil, err
	}
	s.closers = append([]func() error{db.Close}, closers...)
	return s, nil
}

// Close releases the index database and mirror connections if the store
// opened them.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		txid TEXT NOT NULL,
		vout INTEGER NOT NULL,
		status TEXT NOT NULL,
		spend_txid TEXT NOT NULL DEFAULT '',
		cid TEXT NOT NULL,
		deployed_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (txid, vout)
	);`,
		`CREATE INDEX IF NOT EXISTS records_kind ON records (kind, deployed_at);`,
		`
	CREATE TABLE IF NOT EXISTS transactions (
		txid TEXT PRIMARY KEY,
		cid TEXT NOT NULL,
		archived_at TEXT NOT NULL
	);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Save validates r against its redeem script, assigns an id if r has none,
// and stores it. Saving a second record for an outpoint that already has one
// is a precondition failure.
func (s *Store) Save(ctx context.Context, r *Record) (cid.Cid, error) {
	if _, err := r.Contract(); err != nil {
		return cid.Undef, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		return cid.Undef, faults.Wrap(faults.KindMalformed, "DEPLOY-REC-105", "record id is not a uuid", err)
	}
	if r.Status == "" {
		r.Status = contract.StateOpen
	}

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM records WHERE txid = ? AND vout = ?`, r.Txid, r.Vout).Scan(&existing)
	switch {
	case err == nil && existing != r.ID:
		return cid.Undef, faults.New(faults.KindPrecondition, "DEPLOY-STORE-201", fmt.Sprintf("outpoint %s:%d already recorded as %s", r.Txid, r.Vout, existing))
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return cid.Undef, fmt.Errorf("deploy: index lookup: %w", err)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return cid.Undef, fmt.Errorf("deploy: encode record: %w", err)
	}
	id, err := s.cas.Put(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("deploy: store record: %w", err)
	}

	if err := s.index(ctx, r, id); err != nil {
		return cid.Undef, err
	}
	s.log.Debug("record saved", "id", r.ID, "kind", r.Kind, "status", r.Status, "cid", id.String())
	return id, nil
}

// index points the record's index row at object id.
func (s *Store) index(ctx context.Context, r *Record, id cid.Cid) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO records (id, kind, txid, vout, status, spend_txid, cid, deployed_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		spend_txid = excluded.spend_txid,
		cid = excluded.cid,
		updated_at = excluded.updated_at`,
		r.ID, string(r.Kind), r.Txid, r.Vout, string(r.Status), r.SpendTxid, id.String(),
		r.DeployedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("deploy: index record: %w", err)
	}
	return nil
}

// Load returns the latest version of the record with the given id.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	var c string
	err := s.db.QueryRowContext(ctx, `SELECT cid FROM records WHERE id = ?`, id).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("deploy: index lookup: %w", err)
	}
	return s.object(c)
}

// ByTxid returns the records funded by txid, in output order.
func (s *Store) ByTxid(ctx context.Context, txid chainhash.Hash) ([]*Record, error) {
	return s.query(ctx, `SELECT cid FROM records WHERE txid = ? ORDER BY vout`, txid.String())
}

// ByOutPoint returns the record for a funding outpoint.
func (s *Store) ByOutPoint(ctx context.Context, op wire.OutPoint) (*Record, error) {
	var c string
	err := s.db.QueryRowContext(ctx, `SELECT cid FROM records WHERE txid = ? AND vout = ?`, op.Hash.String(), op.Index).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	if err != nil {
		return nil, fmt.Errorf("deploy: index lookup: %w", err)
	}
	return s.object(c)
}

// List returns records of kind, oldest first. An empty kind lists everything.
func (s *Store) List(ctx context.Context, kind contract.Kind) ([]*Record, error) {
	if kind == "" {
		return s.query(ctx, `SELECT cid FROM records ORDER BY deployed_at, id`)
	}
	return s.query(ctx, `SELECT cid FROM records WHERE kind = ? ORDER BY deployed_at, id`, string(kind))
}

// MarkSpent records the terminal state of a covenant and the spending txid.
// Marking an already spent record with the same outcome is a no-op; a
// different outcome is a precondition failure.
func (s *Store) MarkSpent(ctx context.Context, id string, state contract.State, spendTxid chainhash.Hash) (*Record, error) {
	if !state.Terminal() {
		return nil, faults.New(faults.KindMalformed, "DEPLOY-STORE-202", fmt.Sprintf("%q is not a spent state", state))
	}
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		if r.Status == state && r.SpendTxid == spendTxid.String() {
			return r, nil
		}
		return nil, faults.New(faults.KindPrecondition, "DEPLOY-STORE-203", fmt.Sprintf("record %s already %s by %s", id, r.Status, r.SpendTxid))
	}
	r.Status = state
	r.SpendTxid = spendTxid.String()
	if _, err := s.Save(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("covenant spent", "id", id, "kind", r.Kind, "status", state, "txid", r.SpendTxid)
	return r, nil
}

// ArchiveTx keeps a copy of a broadcast transaction.
func (s *Store) ArchiveTx(ctx context.Context, tx *wire.MsgTx) (cid.Cid, error) {
	id, err := storage.PutTx(s.cas, tx)
	if err != nil {
		return cid.Undef, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (txid, cid, archived_at) VALUES (?, ?, ?) ON CONFLICT (txid) DO NOTHING`,
		tx.TxHash().String(), id.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cid.Undef, fmt.Errorf("deploy: index transaction: %w", err)
	}
	return id, nil
}

// ArchivedTx returns a transaction previously passed to ArchiveTx.
func (s *Store) ArchivedTx(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	var c string
	err := s.db.QueryRowContext(ctx, `SELECT cid FROM transactions WHERE txid = ?`, txid.String()).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txid)
	}
	if err != nil {
		return nil, fmt.Errorf("deploy: index lookup: %w", err)
	}
	id, err := cidutil.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("deploy: corrupt index entry for %s: %w", txid, err)
	}
	return storage.GetTx(s.cas, id)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("deploy: index query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cids []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cids = append(cids, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(cids))
	for _, c := range cids {
		r, err := s.object(c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) object(c string) (*Record, error) {
	id, err := cidutil.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("deploy: corrupt index entry: %w", err)
	}
	data, err := s.cas.Get(id)
	if err != nil {
		return nil, fmt.Errorf("deploy: load %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "DEPLOY-REC-106", "stored record is not valid JSON", err)
	}
	if _, err := r.Contract(); err != nil {
		return nil, err
	}
	return &r, nil
}
