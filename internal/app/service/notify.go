package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// notice es un mensaje pendiente. subject != 0 => DM, si no => canal de staff.
type notice struct {
	subject int64
	channel string
	msg     string
}

// outbox junta notificaciones mientras se tiene el lock del subject;
// se envían recién al soltarlo.
type outbox struct {
	items []notice
}

func (o *outbox) dm(subject int64, msg string) {
	o.items = append(o.items, notice{subject: subject, msg: msg})
}

func (o *outbox) staff(channel, msg string) {
	o.items = append(o.items, notice{channel: channel, msg: msg})
}

// courier entrega un outbox con timeout acotado. Los fallos sólo se loguean.
type courier struct {
	n       Notifier
	timeout time.Duration
}

func (c courier) send(ctx context.Context, o *outbox) {
	if c.n == nil || o == nil {
		return
	}
	for _, it := range o.items {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		var err error
		if it.subject != 0 {
			err = c.n.Notify(cctx, it.subject, it.msg)
		} else {
			err = c.n.Staff(cctx, it.channel, it.msg)
		}
		cancel()
		if err != nil {
			metrics.NotifyFailuresTotal.Inc()
			log.Warn().Err(err).Int64("subject", it.subject).Str("channel", it.channel).Msg("notify failed")
		}
	}
}

// storageErr promueve errores crudos de repos a KindStorage. Los *domain.Error pasan tal cual.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Storage(err)
}

// notFoundOr convierte ErrRecordNotFound en un NotFound legible.
func notFoundOr(err error, msg string, args ...any) error {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return domain.NotFound(msg, args...)
	}
	return storageErr(err)
}

func ptr[T any](v T) *T { return &v }
