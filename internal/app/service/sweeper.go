package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// Lo implementa internal/infra/storage.DedupRepo
type DedupPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DedupRetention es cuánto se guardan los hashes del intake de apelaciones.
const DedupRetention = 7 * 24 * time.Hour

type SweepReport struct {
	LoasExpired     []int64
	TimeoutsExpired int
	DedupPruned     int64
}

// Sweeper corre los barridos periódicos: LOAs vencidas, timeouts vencidos y dedup viejo.
// Lo usan el ticker del bot y la lambda janitor; todos los pasos son idempotentes.
type Sweeper struct {
	loa   *LoaService
	mod   *ModerationService
	dedup DedupPruner
	now   func() time.Time
}

func NewSweeper(loa *LoaService, mod *ModerationService, dedup DedupPruner, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{loa: loa, mod: mod, dedup: dedup, now: now}
}

// Run ejecuta cada paso aunque otro falle y devuelve los errores juntos.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	var errs []error

	if s.loa != nil {
		ids, err := s.loa.SweepExpired(ctx, s.now())
		rep.LoasExpired = ids
		errs = append(errs, s.record("loa", err))
	}
	if s.mod != nil {
		n, err := s.mod.ExpireTimeouts(ctx)
		rep.TimeoutsExpired = n
		errs = append(errs, s.record("timeouts", err))
	}
	if s.dedup != nil {
		n, err := s.dedup.Prune(ctx, DedupRetention)
		rep.DedupPruned = n
		errs = append(errs, s.record("dedup", err))
	}

	log.Info().
		Int("loas", len(rep.LoasExpired)).
		Int("timeouts", rep.TimeoutsExpired).
		Int64("dedup", rep.DedupPruned).
		Msg("sweep done")
	return rep, errors.Join(errs...)
}

func (s *Sweeper) record(job string, err error) error {
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues(job, "error").Inc()
		log.Error().Err(err).Str("step", job).Msg("sweep failed")
		return fmt.Errorf("sweep %s: %w", job, err)
	}
	metrics.SweepRunsTotal.WithLabelValues(job, "ok").Inc()
	return nil
}

// Loop corre Run cada interval hasta que ctx se cancele. La primera corrida es inmediata.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		_, _ = s.Run(rctx)
		cancel()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
