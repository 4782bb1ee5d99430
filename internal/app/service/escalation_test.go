package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

func counts(t *testing.T, e *env, subject int64, typ domain.PunishmentType) (active, all int) {
	t.Helper()
	ctx := context.Background()
	a, err := e.ledger.CountActive(ctx, subject, typ)
	require.NoError(t, err)
	l, err := e.ledger.CountAll(ctx, subject, typ)
	require.NoError(t, err)
	return a, l
}

func TestVerbalWarnThreshold(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := e.mod.VerbalWarn(ctx, act(1, "lenguaje"))
		require.NoError(t, err)
		assert.Empty(t, res.Escalation.Steps)
	}
	vw, _ := counts(t, e, 1, domain.VerbalWarn)
	w, _ := counts(t, e, 1, domain.Warn)
	assert.Equal(t, 2, vw)
	assert.Equal(t, 0, w)

	res, err := e.mod.VerbalWarn(ctx, act(1, "lenguaje"))
	require.NoError(t, err)
	assert.Equal(t, []domain.PunishmentType{domain.Warn}, res.Escalation.Created())
	require.Len(t, res.Escalation.Steps, 1)
	assert.Len(t, res.Escalation.Steps[0].Deactivated, 3)

	vw, _ = counts(t, e, 1, domain.VerbalWarn)
	w, _ = counts(t, e, 1, domain.Warn)
	assert.Equal(t, 0, vw)
	assert.Equal(t, 1, w)

	warns, _ := e.ledger.ListActive(ctx, 1, domain.Warn)
	require.Len(t, warns, 1)
	assert.True(t, warns[0].Auto)
	assert.Equal(t, "auto-escalation: 3 verbal warnings", warns[0].Reason)
	assert.Contains(t, e.act.actions(), ActAutoWarn)
	assert.Empty(t, e.enf.kicks)
}

func TestCascadeIsBounded(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 1, Warns: 1, Kicks: 1})

	res, err := e.mod.VerbalWarn(context.Background(), act(1, "flood"))
	require.NoError(t, err)
	assert.Equal(t, []domain.PunishmentType{domain.Warn, domain.Kick, domain.Ban}, res.Escalation.Created())
	assert.Empty(t, res.Escalation.Failures())

	_, warns := counts(t, e, 1, domain.Warn)
	_, kicks := counts(t, e, 1, domain.Kick)
	_, bans := counts(t, e, 1, domain.Ban)
	assert.Equal(t, 1, warns)
	assert.Equal(t, 1, kicks)
	assert.Equal(t, 1, bans)
	assert.Equal(t, []int64{1}, e.enf.kicks)
	assert.Equal(t, []int64{1}, e.enf.bans)
}

func TestKickFailureSkipsOnlyThatStep(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 1, Warns: 1, Kicks: 1})
	e.enf.kickErr = domain.Enforcement(domain.CodePermissionDenied, errors.New("50013"))

	res, err := e.mod.VerbalWarn(context.Background(), act(1, "flood"))
	require.NoError(t, err)
	assert.Equal(t, []domain.PunishmentType{domain.Warn}, res.Escalation.Created())
	require.Len(t, res.Escalation.Failures(), 1)
	assert.True(t, errors.Is(res.Escalation.Failures()[0], domain.ErrPermissionDenied))

	w, _ := counts(t, e, 1, domain.Warn)
	_, kicks := counts(t, e, 1, domain.Kick)
	assert.Equal(t, 1, w)
	assert.Zero(t, kicks)
	assert.Contains(t, e.act.actions(), ActAutoKick+"_failed")
	assert.Empty(t, e.enf.bans)
}

func TestSubjectGoneSkipsBan(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 3, Warns: 3, Kicks: 1})
	e.enf.banErr = domain.Enforcement(domain.CodeSubjectNotPresent, errors.New("10007"))

	res, err := e.mod.Kick(context.Background(), act(1, "toxic"))
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
	require.Len(t, res.Escalation.Steps, 1)
	assert.Equal(t, domain.Ban, res.Escalation.Steps[0].Tier)
	assert.True(t, errors.Is(res.Escalation.Steps[0].Err, domain.ErrSubjectNotPresent))

	_, bans := counts(t, e, 1, domain.Ban)
	assert.Zero(t, bans)
}

func TestBanAndTimeoutDoNotEscalate(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 1, Warns: 1, Kicks: 1})
	ctx := context.Background()

	// ya hay un kick histórico: un ban o timeout no debe disparar nada
	_, err := e.ledger.Add(ctx, domain.NewPunishment{SubjectID: 1, Type: domain.Kick, Reason: "old", IssuerID: 9})
	require.NoError(t, err)

	res, err := e.mod.Timeout(ctx, act(1, "spam"), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, res.Escalation.Steps)

	res, err = e.mod.Ban(ctx, act(1, "raid"))
	require.NoError(t, err)
	assert.Empty(t, res.Escalation.Steps)
	_, bans := counts(t, e, 1, domain.Ban)
	assert.Equal(t, 1, bans)
}

func TestWarnTriggerStartsAtSecondStep(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 1, Warns: 5, Kicks: 5})
	ctx := context.Background()

	_, err := e.ledger.Add(ctx, domain.NewPunishment{SubjectID: 1, Type: domain.VerbalWarn, Reason: "legacy", IssuerID: 9})
	require.NoError(t, err)

	res, err := e.mod.Warn(ctx, act(1, "spam"))
	require.NoError(t, err)
	assert.Empty(t, res.Escalation.Steps)
	vw, _ := counts(t, e, 1, domain.VerbalWarn)
	assert.Equal(t, 1, vw)
}

func TestAlreadyBannedSkipsBanStep(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 3, Warns: 3, Kicks: 1})
	ctx := context.Background()

	_, err := e.ledger.Add(ctx, domain.NewPunishment{SubjectID: 1, Type: domain.Ban, Reason: "manual", IssuerID: 9})
	require.NoError(t, err)
	res, err := e.mod.Kick(ctx, act(1, "evading"))
	require.NoError(t, err)
	assert.Empty(t, res.Escalation.Steps)
	assert.Empty(t, e.enf.bans)
}

func TestEscalationStorageFailureKeepsBasePunishment(t *testing.T) {
	e := newEnv(t, defaults())
	e.punish.countAllErr = errors.New("conn reset")

	res, err := e.mod.Kick(context.Background(), act(1, "toxic"))
	require.NoError(t, err, "el kick ya quedó registrado y aplicado")
	assert.Nil(t, res.Warning)
	assert.Equal(t, domain.KindStorage, domain.KindOf(res.Escalation.Err))
	assert.NotZero(t, res.Punishment.ID)
	assert.Equal(t, []int64{1}, e.enf.kicks)

	kicks, _ := e.punish.CountActive(context.Background(), 1, domain.Kick)
	assert.Equal(t, 1, kicks)
	acts := e.act.actions()
	assert.Contains(t, acts, ActKick)
	assert.NotContains(t, acts, ActKick+"_failed")
	assert.Contains(t, acts, ActEscalation+"_failed")
	msgs := e.notifier.staff[ChannelModLog]
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "auto-escalado")
}

func TestConcurrentVerbalWarnsEscalateOncePerThreshold(t *testing.T) {
	e := newEnv(t, defaults())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.mod.VerbalWarn(ctx, act(1, "spam"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	vw, allVW := counts(t, e, 1, domain.VerbalWarn)
	w, _ := counts(t, e, 1, domain.Warn)
	assert.Equal(t, 0, vw)
	assert.Equal(t, 6, allVW)
	assert.Equal(t, 2, w)
}

func TestEscalatorIgnoresUnknownTrigger(t *testing.T) {
	e := newEnv(t, Thresholds{VerbalWarns: 1, Warns: 1, Kicks: 1})
	esc := NewEscalator(e.ledger, passTx{}, e.enf, e.activity, Thresholds{VerbalWarns: 1, Warns: 1, Kicks: 1}, 0)

	rep, err := esc.Evaluate(context.Background(), Trigger{SubjectID: 1, IssuerID: 2, Type: domain.Timeout})
	require.NoError(t, err)
	assert.Empty(t, rep.Steps)
}
