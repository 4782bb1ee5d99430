package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	discordrouter "github.com/jose-valero/kronoz-mod-bot/internal/adapters/discord"
	"github.com/jose-valero/kronoz-mod-bot/internal/adapters/httpapi"
	"github.com/jose-valero/kronoz-mod-bot/internal/app/bootstrap"
	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/config"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/cooldown"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/logging"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/storage"
)

func main() {
	cfg, err := config.Load("DATABASE_URL", "DISCORD_BOT_TOKEN", "DISCORD_GUILD_ID")
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	log.Info().Msg("✅ DB lista y migrada")

	// Cooldowns: Redis si hay REDIS_URL, si no en memoria
	var cd service.Cooldown = cooldown.NewMemory(nil)
	if cfg.RedisURL != "" {
		rdb, err := cooldown.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		cd = cooldown.NewRedis(rdb, "")
		log.Info().Msg("✅ cooldowns en Redis")
	}

	// Discord session
	s, err := discordgo.New(bootstrap.BotAuth(cfg.DiscordToken))
	if err != nil {
		log.Fatal().Err(err).Msg("discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	if err := s.Open(); err != nil {
		log.Fatal().Err(err).Msg("discord open")
	}
	defer s.Close()
	log.Info().Str("user", s.State.User.Username).Str("id", s.State.User.ID).Msg("✅ conectado")

	app := bootstrap.Build(db, cfg, bootstrap.Platform{
		Enforcer: discordrouter.NewEnforcer(s, cfg.DiscordGuild),
		Notifier: discordrouter.NewNotifier(s, bootstrap.StaffChannels(cfg)),
		Cooldown: cd,
	})

	// Router
	r := discordrouter.NewRouter(
		s,
		cfg.DiscordGuild,
		discordrouter.Roles{Admin: cfg.AdminRoleIDs, Staff: cfg.StaffRoleIDs},
		discordrouter.Services{
			Moderation: app.Moderation,
			Appeals:    app.Appeals,
			Loa:        app.Loa,
			Activity:   app.Activity,
			Tickets:    app.Tickets,
			Notes:      app.Notes,
			Links:      app.Links,
		},
		discordrouter.TicketCfg{CategoryID: cfg.TicketCategoryID},
	)
	if err := r.Register(); err != nil {
		log.Fatal().Err(err).Msg("registrando comandos")
	}
	r.Handlers()
	log.Info().Str("guild", cfg.DiscordGuild).Msg("✅ comandos registrados")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.New(app.Activity, app.Moderation, db).Run(gctx, cfg.HTTPAddr)
	})
	g.Go(func() error {
		return app.Sweeper.Loop(gctx, cfg.SweepInterval)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown con error")
	}
	log.Info().Msg("👋 bot detenido")
}
