package bootstrap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/adapters/discord"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/config"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/cooldown"
)

// BotAuth agrega el prefijo "Bot " si falta.
func BotAuth(token string) string {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(strings.ToLower(token), "bot ") {
		token = "Bot " + token
	}
	return token
}

// RESTPlatform es para las lambdas: sesión sin gateway, sólo REST. Sin token
// o guild devuelve una Platform sin Enforcer/Notifier y todo corre sin avisos.
func RESTPlatform(cfg config.Config) (Platform, error) {
	p := Platform{Cooldown: cooldown.NewMemory(nil)}
	if strings.TrimSpace(cfg.DiscordToken) == "" || cfg.DiscordGuild == "" {
		log.Warn().Msg("sin DISCORD_BOT_TOKEN/DISCORD_GUILD_ID: no se envían avisos")
		return p, nil
	}
	s, err := discordgo.New(BotAuth(cfg.DiscordToken))
	if err != nil {
		return p, fmt.Errorf("discord session: %w", err)
	}
	p.Enforcer = discord.NewEnforcer(s, cfg.DiscordGuild)
	p.Notifier = discord.NewNotifier(s, StaffChannels(cfg))
	return p, nil
}

func StaffChannels(cfg config.Config) discord.StaffChannels {
	return discord.StaffChannels{
		ModLog: cfg.ModLogChannel,
		Appeal: cfg.AppealChannel,
		Loa:    cfg.LoaChannel,
	}
}
