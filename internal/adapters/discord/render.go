package discord

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

const (
	colorMod    = 0xE67E22
	colorAppeal = 0x3498DB
	colorLoa    = 0x2ECC71
	colorNote   = 0x95A5A6

	maxButtonRows = 5
)

var actionEmoji = map[domain.PunishmentType]string{
	domain.VerbalWarn: "🗣️",
	domain.Warn:       "⚠️",
	domain.Kick:       "👢",
	domain.Ban:        "🔨",
	domain.Timeout:    "⏳",
}

func renderAction(t domain.PunishmentType, subject int64, res service.ActionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s** #%d a %s", actionEmoji[t], t.Label(), res.Punishment.ID, mention(subject))
	if res.Punishment.ExpiresAt != nil {
		fmt.Fprintf(&b, " hasta %s", stamp(*res.Punishment.ExpiresAt))
	}
	if t == domain.VerbalWarn || t == domain.Warn {
		fmt.Fprintf(&b, " (activos: %d)", res.ActiveCount)
	}
	if res.Warning != nil {
		fmt.Fprintf(&b, "\n⚠️ Quedó registrado pero no se pudo aplicar: %s", domain.UserMessage(res.Warning))
	}
	for _, st := range res.Escalation.Steps {
		if st.PunishmentID == 0 {
			fmt.Fprintf(&b, "\n⚠️ Auto-escalado a **%s** falló: %s", st.Tier.Label(), domain.UserMessage(st.Err))
			continue
		}
		fmt.Fprintf(&b, "\n🔄 Auto-escalado a **%s** (#%d)", st.Tier.Label(), st.PunishmentID)
		if len(st.Deactivated) > 0 {
			fmt.Fprintf(&b, ", se limpiaron %d previos", len(st.Deactivated))
		}
	}
	if res.Escalation.Err != nil {
		fmt.Fprintf(&b, "\n⚠️ La sanción quedó aplicada pero el auto-escalado se cortó: %s", domain.UserMessage(res.Escalation.Err))
	}
	return b.String()
}

func renderLift(title string, subject int64, res service.ActionResult) string {
	msg := "✅ " + title + " para " + mention(subject) + "."
	if res.Warning != nil {
		msg += "\n⚠️ El registro cambió pero la plataforma falló: " + domain.UserMessage(res.Warning)
	}
	return msg
}

func renderUnwarn(t domain.PunishmentType, subject int64, res service.ActionResult) string {
	return fmt.Sprintf("✅ Quitado %s #%d a %s. Quedan %d activos.", t.Label(), res.Punishment.ID, mention(subject), res.ActiveCount)
}

func renderHistory(subject int64, ps []domain.Punishment) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: "Historial de sanciones", Description: mention(subject), Color: colorMod}
	if len(ps) == 0 {
		e.Description += "\nSin sanciones."
		return e
	}
	for _, p := range ps {
		state := "inactiva"
		if p.Active {
			state = "activa"
		}
		if p.Auto {
			state += ", auto"
		}
		val := fmt.Sprintf("%s\npor %s el %s", p.Reason, issuer(p.IssuerID), stamp(p.IssuedAt))
		if p.ExpiresAt != nil {
			val += "\nvence " + stamp(*p.ExpiresAt)
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d %s %s (%s)", p.ID, actionEmoji[p.Type], p.Type.Label(), state),
			Value: clipField(val),
		})
	}
	return e
}

func issuer(id int64) string {
	if id == domain.SystemActor {
		return "sistema"
	}
	return mention(id)
}

func renderAppeals(title string, list []domain.Appeal) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: title, Color: colorAppeal}
	if len(list) == 0 {
		e.Description = "No hay apelaciones."
		return e
	}
	for _, a := range list {
		val := fmt.Sprintf("%s sobre sanción #%d, %s\n%s", mention(a.SubjectID), a.PunishmentID, stamp(a.CreatedAt), a.Text)
		if a.DecisionText != nil && *a.DecisionText != "" {
			val += "\nRespuesta: " + *a.DecisionText
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d (%s)", a.ID, a.Status),
			Value: clipField(val),
		})
	}
	return e
}

func appealButtons(list []domain.Appeal) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, a := range list {
		if a.Status != domain.AppealPending || len(rows) == maxButtonRows {
			continue
		}
		rows = append(rows, decisionRow("appeal", a.ID))
	}
	return rows
}

func renderResolution(res service.AppealResult) string {
	a := res.Appeal
	msg := fmt.Sprintf("Apelación **#%d** de %s: **%s**.", a.ID, mention(a.SubjectID), a.Status)
	if a.Status == domain.AppealApproved {
		msg += fmt.Sprintf(" Sanción #%d desactivada.", res.Punishment.ID)
	}
	if res.Warning != nil {
		msg += "\n⚠️ No se pudo levantar en la plataforma: " + domain.UserMessage(res.Warning)
	}
	return msg
}

func renderLoas(title string, list []domain.Loa) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: title, Color: colorLoa}
	if len(list) == 0 {
		e.Description = "No hay licencias."
		return e
	}
	for _, l := range list {
		val := fmt.Sprintf("%s del %s al %s (%d días)\n%s", mention(l.SubjectID), day(l.StartDate), day(l.EndDate), l.Days(), l.Reason)
		if l.DecisionText != nil && *l.DecisionText != "" {
			val += "\nRespuesta: " + *l.DecisionText
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d (%s)", l.ID, l.Status),
			Value: clipField(val),
		})
	}
	return e
}

func loaButtons(list []domain.Loa) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, l := range list {
		if l.Status != domain.LoaPending || len(rows) == maxButtonRows {
			continue
		}
		rows = append(rows, decisionRow("loa", l.ID))
	}
	return rows
}

func decisionRow(prefix string, id int64) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			Style:    discordgo.SuccessButton,
			Label:    fmt.Sprintf("Aprobar #%d", id),
			CustomID: fmt.Sprintf("%s:approve:%d", prefix, id),
		},
		discordgo.Button{
			Style:    discordgo.DangerButton,
			Label:    fmt.Sprintf("Denegar #%d", id),
			CustomID: fmt.Sprintf("%s:deny:%d", prefix, id),
		},
	}}
}

func renderStats(staff int64, days int, st map[string]int) string {
	if len(st) == 0 {
		return fmt.Sprintf("%s no registró acciones en los últimos %d días.", mention(staff), days)
	}
	keys := make([]string, 0, len(st))
	total := 0
	for k, n := range st {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s, últimos %d días: **%d** acciones\n", mention(staff), days, total)
	for _, k := range keys {
		fmt.Fprintf(&b, "• %s: %d\n", k, st[k])
	}
	return b.String()
}

func renderLeaderboard(days int, rows []domain.LeaderboardRow) string {
	if len(rows) == 0 {
		return fmt.Sprintf("Sin actividad de staff en los últimos %d días.", days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Ranking de staff, últimos %d días\n", days)
	for i, row := range rows {
		fmt.Fprintf(&b, "%d) %s: %d\n", i+1, mention(row.StaffID), row.Total)
	}
	return b.String()
}

func renderRecent(hours int, list []domain.ActivityEntry) string {
	if len(list) == 0 {
		return fmt.Sprintf("Sin acciones en las últimas %d horas.", hours)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🕑 Últimas acciones (%dh)\n", hours)
	for _, e := range list {
		target := ""
		if e.TargetID != nil {
			target = " → " + mention(*e.TargetID)
		}
		fmt.Fprintf(&b, "%s %s **%s**%s\n", stamp(e.Timestamp), issuer(e.StaffID), e.Action, target)
	}
	return b.String()
}

func renderInactive(days, checked int, list []domain.InactiveStaff) string {
	if len(list) == 0 {
		return fmt.Sprintf("✅ Los %d miembros del staff tuvieron actividad en los últimos %d días.", checked, days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "😴 Sin actividad en %d días (%d de %d)\n", days, len(list), checked)
	for _, s := range list {
		if s.OnLoa {
			fmt.Fprintf(&b, "• %s (de licencia)\n", mention(s.StaffID))
		} else {
			fmt.Fprintf(&b, "• %s\n", mention(s.StaffID))
		}
	}
	return b.String()
}

func renderNotes(subject int64, notes []domain.StaffNote) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: "Notas del staff", Description: mention(subject), Color: colorNote}
	if len(notes) == 0 {
		e.Description += "\nSin notas."
		return e
	}
	for _, n := range notes {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d", n.ID),
			Value: clipField(fmt.Sprintf("%s\n%s, %s", n.Note, mention(n.AuthorID), stamp(n.CreatedAt))),
		})
	}
	return e
}

func renderTicketStats(st domain.TicketStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 Tickets: **%d** abiertos de %d\n", st.Open, st.Total)
	keys := make([]string, 0, len(st.ByCategory))
	for k := range st.ByCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := service.TicketCategories[k]
		if name == "" {
			name = k
		}
		fmt.Fprintf(&b, "• %s: %d\n", name, st.ByCategory[k])
	}
	return b.String()
}

// los fields de un embed admiten hasta 1024 caracteres
func clipField(s string) string {
	rs := []rune(s)
	if len(rs) <= 1024 {
		return s
	}
	return string(rs[:1023]) + "…"
}
