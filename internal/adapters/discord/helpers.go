package discord

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

var reMention = regexp.MustCompile(`<@!?(\d+)>`)

func parseIDs(raw string) []string {
	ids := []string{}
	for _, tok := range strings.Fields(strings.ReplaceAll(raw, ",", " ")) {
		if m := reMention.FindStringSubmatch(tok); len(m) == 2 {
			ids = append(ids, m[1])
			continue
		}
		allDigits := true
		for _, r := range tok {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			ids = append(ids, tok)
		}
	}
	return ids
}

// options devuelve las opciones del comando, entrando al subcomando si lo hay.
func options(ic *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	opts := ic.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}

func opt(ic *discordgo.InteractionCreate, name string, t discordgo.ApplicationCommandOptionType) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, o := range options(ic) {
		if o.Name == name && o.Type == t {
			return o, true
		}
	}
	return nil, false
}

func optStr(ic *discordgo.InteractionCreate, name string) (string, bool) {
	o, ok := opt(ic, name, discordgo.ApplicationCommandOptionString)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(o.StringValue()), true
}

func optInt(ic *discordgo.InteractionCreate, name string) (int, bool) {
	o, ok := opt(ic, name, discordgo.ApplicationCommandOptionInteger)
	if !ok {
		return 0, false
	}
	return int(o.IntValue()), true
}

func optUser(ic *discordgo.InteractionCreate, name string) (int64, bool) {
	o, ok := opt(ic, name, discordgo.ApplicationCommandOptionUser)
	if !ok {
		return 0, false
	}
	u := o.UserValue(nil)
	if u == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(u.ID, 10, 64)
	return id, err == nil
}

func subcmdName(ic *discordgo.InteractionCreate) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			return o.Name, true
		}
	}
	return "", false
}

// modalText saca el valor del único TextInput de un modal.
func modalText(ic *discordgo.InteractionCreate) string {
	for _, c := range ic.ModalSubmitData().Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, in := range row.Components {
			if ti, ok := in.(*discordgo.TextInput); ok {
				return strings.TrimSpace(ti.Value)
			}
		}
	}
	return ""
}

// splitCustomID: "appeal:approve:12" -> ("appeal:approve", ["12"])
func splitCustomID(id string) (ComponentKey, []string) {
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return ComponentKey(id), nil
	}
	return ComponentKey(parts[0] + ":" + parts[1]), parts[2:]
}

func paramID(c *Ctx) (int64, error) {
	if len(c.Params) == 0 {
		return 0, domain.Validation(domain.CodeInvalidArgument, "botón inválido")
	}
	return snowflake(c.Params[0])
}

// durationOf convierte cantidad + unidad de /timeout.
func durationOf(amount int, unit string) (time.Duration, error) {
	if amount <= 0 {
		return 0, domain.Validation(domain.CodeInvalidArgument, "la duración debe ser positiva")
	}
	switch unit {
	case "minutes", "":
		return time.Duration(amount) * time.Minute, nil
	case "hours":
		return time.Duration(amount) * time.Hour, nil
	case "days":
		return time.Duration(amount) * 24 * time.Hour, nil
	}
	return 0, domain.Validation(domain.CodeInvalidArgument, "unidad inválida: %s", unit)
}

// parseDate acepta YYYY-MM-DD.
func parseDate(name, raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, domain.Validation(domain.CodeInvalidArgument, "%s debe tener formato AAAA-MM-DD", name)
	}
	return t, nil
}

func mention(id int64) string { return "<@" + sf(id) + ">" }

func stamp(t time.Time) string { return fmt.Sprintf("<t:%d:f>", t.Unix()) }

func day(t time.Time) string { return t.Format("2006-01-02") }
