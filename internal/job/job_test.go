package job_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/job"
)

func TestManager_CompletesWithResult(t *testing.T) {
	m := job.NewManager()

	id := m.Start("reconcile", func(_ context.Context, p *job.Progress) (any, error) {
		p.Phase("detecting")
		p.Batch(1, 2)

		return "ok", nil
	})

	m.Wait()

	st, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, st.State)
	assert.Equal(t, "ok", st.Result)
	assert.Equal(t, 100, st.Percent)
	assert.Equal(t, 2, st.TotalBatches)
	assert.NotNil(t, st.FinishedAt)
}

func TestManager_Failure(t *testing.T) {
	m := job.NewManager()

	id := m.Start("rollback", func(context.Context, *job.Progress) (any, error) {
		return nil, errors.New("store unavailable")
	})

	m.Wait()

	st, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, st.State)
	assert.Equal(t, "store unavailable", st.Error)
}

func TestManager_PanicBecomesFailure(t *testing.T) {
	m := job.NewManager()

	id := m.Start("rollback", func(context.Context, *job.Progress) (any, error) {
		panic("nil map")
	})

	m.Wait()

	st, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, st.State)
	assert.Contains(t, st.Error, "nil map")
}

func TestManager_CancelIsCooperative(t *testing.T) {
	m := job.NewManager()
	started := make(chan struct{})

	id := m.Start("reconcile", func(_ context.Context, p *job.Progress) (any, error) {
		close(started)

		for !p.Cancelled() {
			time.Sleep(time.Millisecond)
		}

		return nil, nil
	})

	<-started

	_, err := m.Cancel(id)
	require.NoError(t, err)

	m.Wait()

	st, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateCancelled, st.State)
	assert.Len(t, m.List(), 1)
}

func TestManager_Unknown(t *testing.T) {
	m := job.NewManager()

	_, err := m.Get(uuid.New())
	assert.ErrorIs(t, err, job.ErrNotFound)

	_, err = m.Cancel(uuid.New())
	assert.ErrorIs(t, err, job.ErrNotFound)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func TestManager_EvictsFinishedJobsAfterRetention(t *testing.T) {
	clk := &clock{now: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
	m := job.NewManager(job.WithRetention(time.Hour), job.WithClock(clk.Now))

	done := m.Start("reconcile", func(context.Context, *job.Progress) (any, error) { return nil, nil })
	m.Wait()

	release := make(chan struct{})
	running := m.Start("rollback", func(context.Context, *job.Progress) (any, error) {
		<-release
		return nil, nil
	})

	clk.Advance(30 * time.Minute)

	_, err := m.Get(done)
	require.NoError(t, err, "still inside the retention window")
	assert.Len(t, m.List(), 2)

	clk.Advance(31 * time.Minute)

	_, err = m.Get(done)
	assert.ErrorIs(t, err, job.ErrNotFound)

	_, err = m.Cancel(done)
	assert.ErrorIs(t, err, job.ErrNotFound)

	list := m.List()
	require.Len(t, list, 1, "running jobs are never evicted")
	assert.Equal(t, running, list[0].ID)

	close(release)
	m.Wait()

	clk.Advance(2 * time.Hour)
	m.Start("reconcile", func(context.Context, *job.Progress) (any, error) { return nil, nil })

	_, err = m.Get(running)
	assert.ErrorIs(t, err, job.ErrNotFound)
}
