// Package memstore is an in-memory ledger.Store. Transactions are fully
// serialized and roll back by restoring a snapshot taken at begin.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type state struct {
	reps     map[uuid.UUID]*ledger.Representative
	invoices map[uuid.UUID]*ledger.Invoice
	payments map[uuid.UUID]*ledger.Payment
	lines    []*ledger.AllocationLine
	audit    []*ledger.AuditRecord
	runs     map[uuid.UUID]*ledger.Run
	actions  map[uuid.UUID][]*ledger.RepairAction
}

func newState() *state {
	return &state{
		reps:     make(map[uuid.UUID]*ledger.Representative),
		invoices: make(map[uuid.UUID]*ledger.Invoice),
		payments: make(map[uuid.UUID]*ledger.Payment),
		runs:     make(map[uuid.UUID]*ledger.Run),
		actions:  make(map[uuid.UUID][]*ledger.RepairAction),
	}
}

func (s *state) clone() *state {
	c := newState()

	for id, r := range s.reps {
		c.reps[id] = new(*r)
	}

	for id, inv := range s.invoices {
		c.invoices[id] = new(*inv)
	}

	for id, p := range s.payments {
		c.payments[id] = new(*p)
	}

	c.lines = append(c.lines, s.lines...)
	c.audit = append(c.audit, s.audit...)

	for id, run := range s.runs {
		c.runs[id] = new(*run)
	}

	for id, actions := range s.actions {
		cp := make([]*ledger.RepairAction, len(actions))
		for i, a := range actions {
			cp[i] = new(*a)
		}

		c.actions[id] = cp
	}

	return c
}

type Option func(*Store)

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	reader

	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	s.reader = reader{
		lock: func() func() {
			s.mu.RLock()
			return s.mu.RUnlock
		},
		st:  func() *state { return s.state },
		now: s.now,
	}

	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	live := s.state

	tx := &memTx{reader: reader{
		lock: func() func() { return func() {} },
		st:   func() *state { return live },
		now:  s.now,
	}}

	defer func() {
		if r := recover(); r != nil {
			s.state = snapshot
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		s.state = snapshot
		return err
	}

	return nil
}

type memTx struct {
	reader
}

var _ ledger.Tx = (*memTx)(nil)
