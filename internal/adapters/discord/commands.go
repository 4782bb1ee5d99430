package discord

import "github.com/bwmarrin/discordgo"

func userOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: desc, Required: true}
}

func reasonOpt(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Motivo", Required: required, MaxLength: 512}
}

func intOpt(name, desc string, required bool, lo, hi float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Description: desc, Required: required, MinValue: &lo, MaxValue: hi}
}

var decisionChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Aprobar", Value: "approve"},
	{Name: "Denegar", Value: "deny"},
}

var Commands = []*discordgo.ApplicationCommand{
	{Name: "ping", Description: "Chequea que el bot responde"},

	// --- moderación ---
	{
		Name:        "verbalwarn",
		Description: "Advertencia verbal (escala a warn)",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro"), reasonOpt(true)},
	},
	{
		Name:        "warn",
		Description: "Warn formal (escala a kick)",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro"), reasonOpt(true)},
	},
	{
		Name:        "kick",
		Description: "Expulsa a un miembro (escala a ban)",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro"), reasonOpt(true)},
	},
	{
		Name:        "ban",
		Description: "Banea a un miembro",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro"), reasonOpt(true)},
	},
	{
		Name:        "timeout",
		Description: "Silencia a un miembro por un tiempo",
		Options: []*discordgo.ApplicationCommandOption{
			userOpt("user", "Miembro"),
			intOpt("duration", "Cantidad", true, 1, 40320),
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "unit",
				Description: "Unidad",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "minutos", Value: "minutes"},
					{Name: "horas", Value: "hours"},
					{Name: "días", Value: "days"},
				},
			},
			reasonOpt(true),
		},
	},
	{
		Name:        "untimeout",
		Description: "Levanta el timeout de un miembro",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro")},
	},
	{
		Name:        "unwarn",
		Description: "Quita los warns activos de un tipo",
		Options: []*discordgo.ApplicationCommandOption{
			userOpt("user", "Miembro"),
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "Tipo",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "verbal warn", Value: "verbal_warn"},
					{Name: "warn", Value: "warn"},
				},
			},
		},
	},
	{
		Name:        "unban",
		Description: "Desbanea a un usuario por ID",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "ID del usuario", Required: true},
			reasonOpt(false),
		},
	},
	{
		Name:        "removepunishment",
		Description: "Desactiva una sanción por ID",
		Options:     []*discordgo.ApplicationCommandOption{intOpt("id", "ID de la sanción", true, 1, 1e15)},
	},
	{
		Name:        "history",
		Description: "Historial de sanciones de un miembro",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro")},
	},

	// --- apelaciones ---
	{
		Name:        "appeal",
		Description: "Apela tu última sanción de un tipo",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "Sanción a apelar",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "verbal warn", Value: "verbal_warn"},
					{Name: "warn", Value: "warn"},
					{Name: "kick", Value: "kick"},
					{Name: "ban", Value: "ban"},
					{Name: "timeout", Value: "timeout"},
				},
			},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Por qué debería revisarse", Required: true, MinLength: intPtr(1), MaxLength: 2000},
		},
	},
	{Name: "myappeals", Description: "Tus apelaciones"},
	{Name: "viewappeals", Description: "Apelaciones pendientes (staff)"},
	{
		Name:        "reviewappeal",
		Description: "Resuelve una apelación (staff)",
		Options: []*discordgo.ApplicationCommandOption{
			intOpt("id", "ID de la apelación", true, 1, 1e15),
			{Type: discordgo.ApplicationCommandOptionString, Name: "decision", Description: "Decisión", Required: true, Choices: decisionChoices},
			reasonOpt(false),
		},
	},

	// --- LOA ---
	{
		Name:        "loa",
		Description: "Licencias de staff",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "request",
				Description: "Pedir una licencia",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "start", Description: "Inicio (AAAA-MM-DD)", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "end", Description: "Fin (AAAA-MM-DD)", Required: true},
					reasonOpt(true),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "review",
				Description: "Aprobar o denegar una licencia (admins)",
				Options: []*discordgo.ApplicationCommandOption{
					intOpt("id", "ID de la licencia", true, 1, 1e15),
					{Type: discordgo.ApplicationCommandOptionString, Name: "decision", Description: "Decisión", Required: true, Choices: decisionChoices},
					reasonOpt(false),
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pending", Description: "Licencias pendientes (admins)"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "mine", Description: "Tus licencias"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "¿Está de licencia hoy?",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro del staff")},
			},
		},
	},

	// --- actividad de staff ---
	{
		Name:        "staffstats",
		Description: "Acciones de un miembro del staff",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Staff (por defecto vos)"},
			intOpt("days", "Ventana en días", false, 1, 365),
		},
	},
	{
		Name:        "leaderboard",
		Description: "Ranking de actividad del staff",
		Options:     []*discordgo.ApplicationCommandOption{intOpt("days", "Ventana en días", false, 1, 365)},
	},
	{
		Name:        "recentactions",
		Description: "Últimas acciones del staff",
		Options:     []*discordgo.ApplicationCommandOption{intOpt("hours", "Ventana en horas", false, 1, 168)},
	},
	{
		Name:        "inactive",
		Description: "Staff sin actividad (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			intOpt("days", "Ventana en días", false, 1, 365),
			{Type: discordgo.ApplicationCommandOptionString, Name: "staff", Description: "Menciones o IDs (por defecto, roles de staff)"},
		},
	},

	// --- notas ---
	{
		Name:        "note",
		Description: "Notas internas del staff",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Agregar nota",
				Options: []*discordgo.ApplicationCommandOption{
					userOpt("user", "Miembro"),
					{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "Nota", Required: true, MaxLength: 1000},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "Ver notas",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("user", "Miembro")},
			},
		},
	},

	// --- tickets ---
	{
		Name:        "ticket",
		Description: "Tickets de soporte",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "open",
				Description: "Abrir un ticket",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "category",
						Description: "Categoría",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Soporte general", Value: "general"},
							{Name: "Reporte de jugador", Value: "report"},
							{Name: "Apelación", Value: "appeal"},
							{Name: "Soporte técnico", Value: "dev"},
						},
					},
					{Type: discordgo.ApplicationCommandOptionString, Name: "topic", Description: "Tema", MaxLength: 100},
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "close", Description: "Cerrar el ticket de este canal"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "stats", Description: "Estadísticas de tickets (staff)"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "panel", Description: "Publicar el panel de tickets en este canal (admins)"},
		},
	},

	// --- cuentas ---
	{
		Name:        "link",
		Description: "Vincula tu cuenta de Roblox",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "username",
			Description: "Tu usuario de Roblox",
			Required:    true,
		}},
	},
	{Name: "unlink", Description: "Desvincula tu cuenta de Roblox"},
	{Name: "whoami", Description: "Muestra tu vínculo Discord ↔ Roblox"},
}

func intPtr(n int) *int { return &n }
