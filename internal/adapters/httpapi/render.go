package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// Los snowflakes van como string: JSON/JS pierde precisión con int64.
type leaderboardRow struct {
	Rank    int    `json:"rank"`
	StaffID string `json:"staff_id"`
	Total   int    `json:"total"`
}

type punishmentView struct {
	ID        int64      `json:"id"`
	Type      string     `json:"type"`
	Reason    string     `json:"reason"`
	IssuerID  string     `json:"issuer_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	Active    bool       `json:"active"`
	Auto      bool       `json:"auto"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

func toView(p domain.Punishment) punishmentView {
	return punishmentView{
		ID:        p.ID,
		Type:      string(p.Type),
		Reason:    p.Reason,
		IssuerID:  strconv.FormatInt(p.IssuerID, 10),
		IssuedAt:  p.IssuedAt,
		Active:    p.Active,
		Auto:      p.Auto,
		ExpiresAt: p.ExpiresAt,
		RemovedAt: p.RemovedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("httpapi: write response")
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	default:
		log.Error().Err(err).Msg("httpapi: request failed")
	}
	writeJSON(w, status, map[string]string{"code": string(domain.CodeOf(err)), "error": domain.UserMessage(err)})
}

func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeErr(w, domain.Validation(domain.CodeInvalidArgument, "%s debe ser un número", name))
		return 0, false
	}
	return n, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, domain.Validation(domain.CodeInvalidArgument, "id inválido"))
		return 0, false
	}
	return id, true
}

// observe registra métricas y un log por request.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := metrics.NormalizePath(r.URL.Path)
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
		log.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}
