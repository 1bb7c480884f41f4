package deploy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/faults"
	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/bundle"
)

// Bundle label prefixes. A label is the prefix followed by a record id or a
// txid.
const (
	labelRecord = "records/"
	labelTx     = "transactions/"
)

// BackupSummary counts what an export or import carried.
type BackupSummary struct {
	Records      int `json:"records"`
	Transactions int `json:"transactions"`
}

// Export writes the latest version of every record and every archived
// transaction to w as a bundle.
func (s *Store) Export(ctx context.Context, w io.Writer) (BackupSummary, error) {
	var sum BackupSummary
	labels := map[string]cid.Cid{}
	add := func(q, prefix string, n *int) error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("deploy: index query: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var key, c string
			if err := rows.Scan(&key, &c); err != nil {
				return err
			}
			id, err := cidutil.Parse(c)
			if err != nil {
				return fmt.Errorf("deploy: corrupt index entry for %s: %w", key, err)
			}
			labels[prefix+key] = id
			*n++
		}
		return rows.Err()
	}
	if err := add(`SELECT id, cid FROM records`, labelRecord, &sum.Records); err != nil {
		return sum, err
	}
	if err := add(`SELECT txid, cid FROM transactions`, labelTx, &sum.Transactions); err != nil {
		return sum, err
	}
	if err := bundle.Export(w, s.cas, labels); err != nil {
		return sum, err
	}
	s.log.Info("store exported", "records", sum.Records, "transactions", sum.Transactions)
	return sum, nil
}

// Import loads a bundle written by Export and indexes its contents. A
// record already known locally in a spent state is not moved back to open.
func (s *Store) Import(ctx context.Context, r io.Reader) (BackupSummary, error) {
	var sum BackupSummary
	labels, err := bundle.Import(r, s.cas)
	if err != nil {
		return sum, err
	}
	for name, id := range labels {
		switch {
		case strings.HasPrefix(name, labelRecord):
			imported, err := s.importRecord(ctx, strings.TrimPrefix(name, labelRecord), id)
			if err != nil {
				return sum, err
			}
			if imported {
				sum.Records++
			}
		case strings.HasPrefix(name, labelTx):
			if err := s.importTx(ctx, strings.TrimPrefix(name, labelTx), id); err != nil {
				return sum, err
			}
			sum.Transactions++
		default:
			return sum, faults.New(faults.KindMalformed, "DEPLOY-STORE-204", fmt.Sprintf("unknown bundle label %q", name))
		}
	}
	s.log.Info("store imported", "records", sum.Records, "transactions", sum.Transactions)
	return sum, nil
}

func (s *Store) importRecord(ctx context.Context, recordID string, id cid.Cid) (bool, error) {
	rec, err := s.object(id.String())
	if err != nil {
		return false, err
	}
	if rec.ID != recordID {
		return false, faults.New(faults.KindMalformed, "DEPLOY-STORE-204", fmt.Sprintf("bundle label %s holds record %s", recordID, rec.ID))
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM records WHERE txid = ? AND vout = ?`, rec.Txid, rec.Vout).Scan(&existing)
	switch {
	case err == nil && existing != rec.ID:
		return false, faults.New(faults.KindPrecondition, "DEPLOY-STORE-201", fmt.Sprintf("outpoint %s:%d already recorded as %s", rec.Txid, rec.Vout, existing))
	case err == nil:
		local, err := s.Load(ctx, rec.ID)
		if err != nil {
			return false, err
		}
		if local.Status.Terminal() && !rec.Status.Terminal() {
			return false, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("deploy: index lookup: %w", err)
	}
	return true, s.index(ctx, rec, id)
}

func (s *Store) importTx(ctx context.Context, txid string, id cid.Cid) error {
	tx, err := storage.GetTx(s.cas, id)
	if err != nil {
		return err
	}
	if tx.TxHash().String() != txid {
		return faults.New(faults.KindMalformed, "DEPLOY-STORE-204", fmt.Sprintf("bundle label %s holds transaction %s", txid, tx.TxHash()))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transactions (txid, cid, archived_at) VALUES (?, ?, ?) ON CONFLICT (txid) DO NOTHING`,
		txid, id.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("deploy: index transaction: %w", err)
	}
	return nil
}
