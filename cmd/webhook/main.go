package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/bootstrap"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/config"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/logging"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/storage"
)

// Intake de apelaciones desde el formulario externo. La conexión se arma en
// el cold start y se reusa entre invocaciones.
func main() {
	cfg, err := config.Load("DATABASE_URL", "WEBHOOK_SECRET")
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, db, err := storage.OpenPool(ctx, cfg.DatabaseURL, 4)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}

	p, err := bootstrap.RESTPlatform(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("platform")
	}
	app := bootstrap.Build(db, cfg, p)

	h := &intake{
		secret:  cfg.WebhookSecret,
		header:  cfg.WebhookHeader,
		dedup:   app.Dedup,
		appeals: app.Appeals,
	}
	lambda.Start(h.handle)
}
