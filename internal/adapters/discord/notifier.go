package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
)

const maxMessageLen = 2000

// StaffChannels mapea los canales lógicos de staff a IDs de canal.
type StaffChannels struct {
	ModLog string
	Appeal string
	Loa    string
}

func (c StaffChannels) lookup(name string) string {
	switch name {
	case service.ChannelModLog:
		return c.ModLog
	case service.ChannelAppeal:
		return c.Appeal
	case service.ChannelLoa:
		return c.Loa
	}
	return ""
}

// Notifier manda DMs y avisos a canales de staff. Cumple service.Notifier.
type Notifier struct {
	s        *discordgo.Session
	channels StaffChannels
}

func NewNotifier(s *discordgo.Session, channels StaffChannels) *Notifier {
	return &Notifier{s: s, channels: channels}
}

func (n *Notifier) Notify(ctx context.Context, subjectID int64, message string) error {
	ch, err := n.s.UserChannelCreate(sf(subjectID), discordgo.WithContext(ctx))
	if err != nil {
		return classify(ctx, err)
	}
	_, err = n.s.ChannelMessageSend(ch.ID, clip(message), discordgo.WithContext(ctx))
	return classify(ctx, err)
}

// Staff sin canal configurado no hace nada.
func (n *Notifier) Staff(ctx context.Context, channel, message string) error {
	id := n.channels.lookup(channel)
	if id == "" {
		log.Debug().Str("channel", channel).Msg("notifier: canal sin configurar")
		return nil
	}
	_, err := n.s.ChannelMessageSendComplex(id, &discordgo.MessageSend{
		Content:         clip(message),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return classify(ctx, err)
}

func clip(s string) string {
	rs := []rune(s)
	if len(rs) <= maxMessageLen {
		return s
	}
	return string(rs[:maxMessageLen-1]) + "…"
}
