package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

func TestLoaOverlapRejection(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "vacaciones")
	require.NoError(t, err)
	_, err = e.loa.Review(ctx, l.ID, domain.Approve, 800, "")
	require.NoError(t, err)

	_, err = e.loa.Request(ctx, 5, date("2026-02-05"), date("2026-02-15"), "viaje")
	assert.Equal(t, domain.CodeOverlappingInterval, domain.CodeOf(err))

	ok, err := e.loa.Request(ctx, 5, date("2026-02-11"), date("2026-02-20"), "viaje")
	require.NoError(t, err)
	assert.Equal(t, domain.LoaPending, ok.Status)

	// otro subject no choca
	_, err = e.loa.Request(ctx, 6, date("2026-02-05"), date("2026-02-15"), "viaje")
	assert.NoError(t, err)
}

func TestLoaDeniedDoesNotBlock(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "a")
	require.NoError(t, err)
	_, err = e.loa.Review(ctx, l.ID, domain.Deny, 800, "falta de staff")
	require.NoError(t, err)

	_, err = e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "b")
	assert.NoError(t, err)
}

func TestLoaValidation(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end string
		code       domain.Code
	}{
		{"end before start", "2026-02-10", "2026-02-01", domain.CodeInvalidDateRange},
		{"same day", "2026-02-10", "2026-02-10", domain.CodeInvalidDateRange},
		{"in the past", "2026-01-19", "2026-01-25", domain.CodeStartInPast},
		{"too long", "2026-02-01", "2026-04-03", domain.CodeDurationExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.loa.Request(ctx, 5, date(tc.start), date(tc.end), "x")
			assert.Equal(t, tc.code, domain.CodeOf(err))
		})
	}

	// hoy es válido, y 60 días exactos también
	_, err := e.loa.Request(ctx, 5, date("2026-01-20"), date("2026-03-21"), "x")
	assert.NoError(t, err)
	assert.NotContains(t, e.act.actions(), ActLoaRequest+"_failed")
}

func TestLoaReviewRules(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()
	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "a")
	require.NoError(t, err)

	_, err = e.loa.Review(ctx, l.ID, domain.Deny, 800, "  ")
	assert.Equal(t, domain.CodeDenyReasonRequired, domain.CodeOf(err))

	got, err := e.loa.Review(ctx, l.ID, domain.Approve, 800, "")
	require.NoError(t, err)
	assert.Equal(t, domain.LoaApproved, got.Status)

	_, err = e.loa.Review(ctx, l.ID, domain.Deny, 800, "tarde")
	assert.True(t, errors.Is(err, &domain.Error{Code: domain.CodeAlreadyReviewed}))

	_, err = e.loa.Review(ctx, 99, domain.Approve, 800, "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NotEmpty(t, e.notifier.dms[5])
}

func TestLoaSweepIsIdempotent(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()
	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "a")
	require.NoError(t, err)
	pending, err := e.loa.Request(ctx, 6, date("2026-02-01"), date("2026-02-05"), "b")
	require.NoError(t, err)
	_, err = e.loa.Review(ctx, l.ID, domain.Approve, 800, "")
	require.NoError(t, err)

	now := date("2026-02-10").Add(time.Hour)
	first, err := e.loa.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{l.ID}, first)

	second, err := e.loa.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, second)

	got, _ := e.loas.Get(ctx, l.ID)
	assert.Equal(t, domain.LoaExpired, got.Status)
	still, _ := e.loas.Get(ctx, pending.ID)
	assert.Equal(t, domain.LoaPending, still.Status)
}

func TestLoaSweepBeforeEnd(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()
	l, err := e.loa.Request(ctx, 5, date("2026-02-01"), date("2026-02-10"), "a")
	require.NoError(t, err)
	_, err = e.loa.Review(ctx, l.ID, domain.Approve, 800, "")
	require.NoError(t, err)

	ids, err := e.loa.SweepExpired(ctx, date("2026-02-09"))
	require.NoError(t, err)
	assert.Empty(t, ids)

	on, err := e.loa.OnLeave(ctx, 5, date("2026-02-03"))
	require.NoError(t, err)
	assert.True(t, on)
	on, _ = e.loa.OnLeave(ctx, 5, date("2026-02-11"))
	assert.False(t, on)
}

func TestLoaCooldown(t *testing.T) {
	e := newEnv(t, defaults())
	svc := NewLoaService(LoaDeps{
		Loas: e.loas, Activity: e.activity, Cooldown: e.cd, Tx: passTx{},
		Policy: LoaPolicy{MaxDays: 60, RequestCooldown: 24 * time.Hour}, Now: e.now,
	})
	ctx := context.Background()

	_, err := svc.Request(ctx, 5, date("2026-02-01"), date("2026-02-03"), "a")
	require.NoError(t, err)
	_, err = svc.Request(ctx, 5, date("2026-03-01"), date("2026-03-03"), "b")
	assert.Equal(t, domain.CodeOnCooldown, domain.CodeOf(err))

	e.advance(25 * time.Hour)
	_, err = svc.Request(ctx, 5, date("2026-03-01"), date("2026-03-03"), "b")
	assert.NoError(t, err)

	list, err := svc.ListForSubject(ctx, 5, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	pend, err := svc.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pend, 2)
}

func TestLoaFailedInsertKeepsCooldownFree(t *testing.T) {
	e := newEnv(t, defaults())
	svc := NewLoaService(LoaDeps{
		Loas: e.loas, Activity: e.activity, Cooldown: e.cd, Tx: passTx{},
		Policy: LoaPolicy{MaxDays: 60, RequestCooldown: 24 * time.Hour}, Now: e.now,
	})
	ctx := context.Background()

	e.loas.insertErr = errors.New("db down")
	_, err := svc.Request(ctx, 5, date("2026-02-01"), date("2026-02-03"), "a")
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))

	e.loas.insertErr = nil
	l, err := svc.Request(ctx, 5, date("2026-02-01"), date("2026-02-03"), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.LoaPending, l.Status)

	// el intento exitoso sí consume la ventana
	_, err = svc.Request(ctx, 5, date("2026-03-01"), date("2026-03-03"), "b")
	assert.Equal(t, domain.CodeOnCooldown, domain.CodeOf(err))
}
