package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

type Ctx struct {
	Log     zerolog.Logger
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	GuildID string
	UserID  string
	// ActorID es UserID ya parseado
	ActorID int64
	// Para components: segmentos de custom_id después del prefijo (ej: "appeal:approve:12" -> ["12"])
	Params []string
}

type CommandHandler func(ctx context.Context, c *Ctx) error

// Access es el nivel mínimo que pide un comando o componente.
type Access int

const (
	AccessMember Access = iota
	AccessStaff
	AccessAdmin
)

type Command struct {
	Name    string
	Access  Access
	Handler CommandHandler
}

type ComponentHandler func(ctx context.Context, c *Ctx) error

// ComponentKey: usamos prefijos para enrutar (ej: "appeal:approve", "ticket:close")
type ComponentKey string

type Component struct {
	Access  Access
	Handler ComponentHandler
}
