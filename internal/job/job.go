// Package job tracks long-running operations started from the API so that
// callers can poll their progress and ask them to stop.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status is a point-in-time copy of a job.
type Status struct {
	ID           uuid.UUID
	Kind         string
	Phase        string
	Percent      int
	CurrentBatch int
	TotalBatches int
	State        State
	Error        string
	Result       any
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Progress is handed to the running function. It is safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	status    Status
	cancelled bool
}

func (p *Progress) Phase(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Phase = phase
}

// Batch records that batch current of total has started.
func (p *Progress) Batch(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.CurrentBatch = current
	p.status.TotalBatches = total

	if total > 0 {
		p.status.Percent = min(100, (current-1)*100/total)
	}
}

// Cancelled reports whether Cancel was called. Long loops poll it between
// units of work.
func (p *Progress) Cancelled() bool {
	if p == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancelled
}

func (p *Progress) snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

type Func func(ctx context.Context, p *Progress) (any, error)

// DefaultRetention is how long a finished job stays visible.
const DefaultRetention = time.Hour

type Manager struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*Progress
	wg        sync.WaitGroup
	now       func() time.Time
	retention time.Duration
}

type Option func(*Manager)

// WithRetention sets how long finished jobs are kept. Non-positive values
// keep the default.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{jobs: make(map[uuid.UUID]*Progress), now: time.Now, retention: DefaultRetention}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) expired(st Status, now time.Time) bool {
	return st.FinishedAt != nil && now.Sub(*st.FinishedAt) > m.retention
}

// prune drops finished jobs older than the retention. Callers hold m.mu.
func (m *Manager) prune() {
	now := m.now()

	for id, p := range m.jobs {
		if m.expired(p.snapshot(), now) {
			delete(m.jobs, id)
		}
	}
}

// lookup returns a job that has not outlived the retention.
func (m *Manager) lookup(id uuid.UUID) (*Progress, error) {
	m.mu.RLock()
	p, ok := m.jobs[id]
	m.mu.RUnlock()

	if !ok || m.expired(p.snapshot(), m.now()) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	return p, nil
}

// Start runs fn on a background goroutine detached from the caller's
// context and returns the job id immediately.
func (m *Manager) Start(kind string, fn Func) uuid.UUID {
	p := &Progress{status: Status{
		ID:        uuid.New(),
		Kind:      kind,
		Phase:     "starting",
		State:     StateRunning,
		StartedAt: m.now(),
	}}

	m.mu.Lock()
	m.prune()
	m.jobs[p.status.ID] = p
	m.mu.Unlock()

	m.wg.Go(func() { m.run(p, fn) })

	return p.status.ID
}

func (m *Manager) run(p *Progress, fn Func) {
	id := p.status.ID

	result, err := func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()

		return fn(context.Background(), p)
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Result = result
	p.status.FinishedAt = new(m.now())

	switch {
	case err != nil:
		p.status.State = StateFailed
		p.status.Error = err.Error()
		slog.Error("job failed", "job_id", id, "kind", p.status.Kind, "error", err)
	case p.cancelled:
		p.status.State = StateCancelled
	default:
		p.status.State = StateCompleted
		p.status.Percent = 100
		p.status.Phase = "done"
	}
}

func (m *Manager) Get(id uuid.UUID) (Status, error) {
	p, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}

	return p.snapshot(), nil
}

// Cancel flags the job. It is a no-op for finished jobs.
func (m *Manager) Cancel(id uuid.UUID) (Status, error) {
	p, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}

	p.mu.Lock()
	if p.status.State == StateRunning {
		p.cancelled = true
		p.status.Phase = "cancelling"
	}
	p.mu.Unlock()

	return p.snapshot(), nil
}

// List returns every retained job, newest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	m.prune()

	out := make([]Status, 0, len(m.jobs))

	for _, p := range m.jobs {
		out = append(out, p.snapshot())
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Status) int { return b.StartedAt.Compare(a.StartedAt) })

	return out
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
