package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

func SendEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, msg string) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("SendEphemeral")
	}
	return err
}

// Defer efímero (para trabajos >3s)
func DeferEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("DeferEphemeral")
	}
	return err
}

func ReplyEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) {
	replyEphemeral(s, ic, content, embeds, nil)
}

// ReplyWithButtons igual que ReplyEphemeral pero con filas de componentes.
func ReplyWithButtons(s *discordgo.Session, ic *discordgo.InteractionCreate, content string, embeds []*discordgo.MessageEmbed, rows []discordgo.MessageComponent) {
	replyEphemeral(s, ic, content, embeds, rows)
}

func replyEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string, embeds []*discordgo.MessageEmbed, rows []discordgo.MessageComponent) {
	content = clip(content)
	_, err := s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Embeds:          embeds,
		Components:      rows,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err == nil {
		return
	}
	// Fallback sólo si todavía no hay respuesta (webhook desconocido)
	var reqErr *discordgo.RESTError
	if errors.As(err, &reqErr) && reqErr.Message != nil && reqErr.Message.Code == apiUnknownWebhook {
		_ = s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Flags:      discordgo.MessageFlagsEphemeral,
				Embeds:     embeds,
				Components: rows,
			},
		})
		return
	}
	log.Warn().Err(err).Msg("ReplyEphemeral")
}

// respuesta publica en el canal (anuncios de moderación)
func SendResponse(s *discordgo.Session, channelID string, msg string) error {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         clip(msg),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		log.Warn().Err(err).Msg("SendResponse")
	}
	return err
}

// OpenModal responde la interacción con un modal de un solo campo de texto.
func OpenModal(s *discordgo.Session, ic *discordgo.InteractionCreate, customID, title, label string, maxLen int) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "text",
						Label:     label,
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MaxLength: maxLen,
					},
				}},
			},
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("OpenModal")
	}
	return err
}
