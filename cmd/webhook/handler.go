package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// Lo implementa internal/infra/storage.DedupRepo
type Deduper interface {
	Seen(ctx context.Context, hash string) (bool, error)
	Forget(ctx context.Context, hash string) error
}

// Lo implementa service.AppealService
type AppealCreator interface {
	Create(ctx context.Context, subjectID, punishmentID int64, text string) (domain.Appeal, error)
}

// intakeRequest es el body que manda el formulario externo de apelaciones.
// Los IDs vienen como string porque son snowflakes de Discord.
type intakeRequest struct {
	SubjectID    string `json:"subject_id"`
	PunishmentID string `json:"punishment_id"`
	Text         string `json:"text"`
}

type intake struct {
	secret  string
	header  string
	dedup   Deduper
	appeals AppealCreator
}

func (h *intake) readSecret(req events.APIGatewayV2HTTPRequest) string {
	for _, k := range []string{h.header, "x-kronoz-secret"} {
		if k == "" {
			continue
		}
		if v := req.Headers[k]; v != "" {
			return v
		}
		if v := req.Headers[strings.ToUpper(k)]; v != "" {
			return v
		}
	}
	return req.QueryStringParameters["wh"]
}

func (h *intake) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	l := log.With().
		Str("path", req.RawPath).
		Str("ip", req.RequestContext.HTTP.SourceIP).
		Bool("b64", req.IsBase64Encoded).
		Logger()

	got := h.readSecret(req)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		l.Warn().Msg("intake: secreto inválido")
		return reply(http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"}), nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return reply(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid base64"}), nil
		}
		body = string(dec)
	}

	var in intakeRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return reply(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"}), nil
	}
	subject, err1 := strconv.ParseInt(strings.TrimSpace(in.SubjectID), 10, 64)
	punishment, err2 := strconv.ParseInt(strings.TrimSpace(in.PunishmentID), 10, 64)
	if err1 != nil || err2 != nil || subject <= 0 || punishment <= 0 {
		return reply(http.StatusBadRequest, map[string]any{"ok": false, "error": "subject_id y punishment_id son requeridos"}), nil
	}

	// dedup por hash del body: reenvíos del formulario no duplican apelaciones
	sum := sha256.Sum256([]byte(body))
	key := hex.EncodeToString(sum[:])
	if h.dedup != nil {
		dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		seen, err := h.dedup.Seen(dctx, key)
		cancel()
		if err != nil {
			l.Error().Err(err).Msg("intake: dedup")
			return reply(http.StatusInternalServerError, map[string]any{"ok": false, "error": "storage"}), nil
		}
		if seen {
			metrics.IntakeTotal.WithLabelValues("duplicate").Inc()
			return reply(http.StatusOK, map[string]any{"ok": true, "duplicate": true}), nil
		}
	}

	a, err := h.appeals.Create(ctx, subject, punishment, in.Text)
	if err != nil {
		if h.dedup != nil {
			if ferr := h.dedup.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				l.Warn().Err(ferr).Msg("intake: no se pudo liberar el hash")
			}
		}
		status := statusOf(err)
		metrics.IntakeTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		if status >= 500 {
			l.Error().Err(err).Int64("subject", subject).Msg("intake: create")
		} else {
			l.Info().Err(err).Int64("subject", subject).Msg("intake: rechazada")
		}
		return reply(status, map[string]any{
			"ok":    false,
			"code":  string(domain.CodeOf(err)),
			"error": domain.UserMessage(err),
		}), nil
	}

	metrics.IntakeTotal.WithLabelValues("created").Inc()
	l.Info().Int64("appeal", a.ID).Int64("subject", subject).Msg("intake: apelación creada")
	return reply(http.StatusOK, map[string]any{"ok": true, "appeal_id": a.ID}), nil
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func reply(status int, v any) events.APIGatewayV2HTTPResponse {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}
