package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queries implements ledger.Reader on top of a querier so the same reads run
// inside and outside a transaction.
type queries struct {
	q querier
}

type Store struct {
	queries

	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = dbTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&tx{queries: queries{q: dbTx}}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}

		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type tx struct {
	queries
}

var _ ledger.Tx = (*tx)(nil)

// LockRepresentative takes the row lock that serializes every ledger write
// for one representative until the transaction ends.
func (t *tx) LockRepresentative(ctx context.Context, id uuid.UUID) (*ledger.Representative, error) {
	query := `SELECT ` + selectRepresentativeColumns + ` FROM representatives r WHERE r.id = $1 FOR UPDATE`

	rep, err := scanRepresentative(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("representative %s: %w", id, ledger.ErrNotFound)
		}

		return nil, fmt.Errorf("locking representative: %w", err)
	}

	return rep, nil
}

func (t *tx) LockPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments p WHERE p.id = $1 FOR UPDATE`

	p, err := scanPayment(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", id, ledger.ErrNotFound)
		}

		return nil, fmt.Errorf("locking payment: %w", err)
	}

	return p, nil
}

// LockIssueDate serializes rollbacks of the same issue date.
func (t *tx) LockIssueDate(ctx context.Context, day time.Time) error {
	if _, err := t.q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", issueDateLockKey(day)); err != nil {
		return fmt.Errorf("acquiring issue date lock: %w", err)
	}

	return nil
}

func issueDateLockKey(day time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte("rollback"))
	h.Write([]byte{0})
	h.Write([]byte(day.Format(time.DateOnly)))

	return int64(h.Sum64())
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}

	return out
}

func statusStrings(statuses []ledger.InvoiceStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}

	return out
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ledger.ErrNotFound)
	}

	return fmt.Errorf("getting %s: %w", what, err)
}

func expectOne(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting affected rows: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ledger.ErrNotFound)
	}

	return nil
}
