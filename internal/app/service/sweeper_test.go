package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

type fakeDedup struct {
	n   int64
	err error
	got time.Duration
}

func (f *fakeDedup) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	f.got = olderThan
	return f.n, f.err
}

func TestSweeperRunsEveryJob(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-03"), "viaje")
	require.NoError(t, err)
	_, err = e.loa.Review(ctx, l.ID, domain.Approve, 800, "")
	require.NoError(t, err)
	_, err = e.mod.Timeout(ctx, act(1, "spam"), time.Hour)
	require.NoError(t, err)

	e.advance(20 * 24 * time.Hour)
	dd := &fakeDedup{n: 4}
	sw := NewSweeper(e.loa, e.mod, dd, e.now)

	okBefore := testutil.ToFloat64(metrics.SweepRunsTotal.WithLabelValues("loa", "ok"))
	rep, err := sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{l.ID}, rep.LoasExpired)
	assert.Equal(t, 1, rep.TimeoutsExpired)
	assert.Equal(t, int64(4), rep.DedupPruned)
	assert.Equal(t, DedupRetention, dd.got)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.SweepRunsTotal.WithLabelValues("loa", "ok")))

	// segunda corrida: nada que hacer
	dd.n = 0
	rep, err = sw.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.LoasExpired)
	assert.Zero(t, rep.TimeoutsExpired)
}

func TestSweeperKeepsGoingOnError(t *testing.T) {
	e := newEnv(t, defaults())
	_, err := e.mod.Timeout(context.Background(), act(1, "spam"), time.Minute)
	require.NoError(t, err)
	e.advance(time.Hour)

	sw := NewSweeper(nil, e.mod, &fakeDedup{err: errors.New("db down")}, e.now)
	rep, err := sw.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep dedup")
	assert.Equal(t, 1, rep.TimeoutsExpired)
}

func TestSweeperLoopStopsOnCancel(t *testing.T) {
	e := newEnv(t, defaults())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(e.loa, e.mod, nil, e.now).Loop(ctx, time.Hour) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Loop no terminó")
	}
}
