package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/bootstrap"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/config"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/logging"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/storage"
)

type result struct {
	LoasExpired     []int64 `json:"loas_expired"`
	TimeoutsExpired int     `json:"timeouts_expired"`
	DedupPruned     int64   `json:"dedup_pruned"`
}

func handler(ctx context.Context) (result, error) {
	cfg, err := config.Load("DATABASE_URL")
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return result{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	pool, db, err := storage.OpenPool(cctx, cfg.DatabaseURL, 2)
	if err != nil {
		return result{}, err
	}
	defer pool.Close()
	defer db.Close()

	p, err := bootstrap.RESTPlatform(cfg)
	if err != nil {
		return result{}, err
	}
	rep, err := bootstrap.Build(db, cfg, p).Sweeper.Run(cctx)
	return result{
		LoasExpired:     rep.LoasExpired,
		TimeoutsExpired: rep.TimeoutsExpired,
		DedupPruned:     rep.DedupPruned,
	}, err
}

func main() { lambda.Start(handler) }
