package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// Reports lo cumple *service.ActivityService.
type Reports interface {
	Leaderboard(ctx context.Context, sinceDays, limit int) ([]domain.LeaderboardRow, error)
	StatsFor(ctx context.Context, staffID int64, sinceDays int) (map[string]int, error)
}

// Punishments lo cumple *service.ModerationService.
type Punishments interface {
	History(ctx context.Context, subjectID int64, limit int) ([]domain.Punishment, error)
}

// Pinger lo cumple *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	reports     Reports
	punishments Punishments
	db          Pinger
	mux         chi.Router
}

func New(reports Reports, punishments Punishments, db Pinger) *Server {
	s := &Server{reports: reports, punishments: punishments, db: db}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/staff/{id}/stats", s.staffStats)
		r.Get("/subjects/{id}/punishments", s.subjectPunishments)
	})
	s.mux = r
}

// Run escucha hasta que ctx se cancele y luego hace shutdown ordenado.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("🌐 HTTP listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(w, r, "days", 7)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 10)
	if !ok {
		return
	}
	rows, err := s.reports.Leaderboard(r.Context(), days, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]leaderboardRow, 0, len(rows))
	for i, row := range rows {
		out = append(out, leaderboardRow{Rank: i + 1, StaffID: strconv.FormatInt(row.StaffID, 10), Total: row.Total})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "rows": out})
}

func (s *Server) staffStats(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	days, ok := intQuery(w, r, "days", 7)
	if !ok {
		return
	}
	st, err := s.reports.StatsFor(r.Context(), id, days)
	if err != nil {
		writeErr(w, err)
		return
	}
	total := 0
	for _, n := range st {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"staff_id": strconv.FormatInt(id, 10),
		"days":     days,
		"total":    total,
		"actions":  st,
	})
}

func (s *Server) subjectPunishments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 25)
	if !ok {
		return
	}
	ps, err := s.punishments.History(r.Context(), id, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]punishmentView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject_id": strconv.FormatInt(id, 10), "punishments": out})
}
