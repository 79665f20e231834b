package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ctxkeys"
	"github.com/templui/piggybank/internal/render"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	started time.Time
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		started: time.Now(),
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}
	if cfg := ctxkeys.Config(r.Context()); cfg != nil {
		body["app"] = cfg.AppName
		body["env"] = cfg.AppEnv
		body["package_id"] = cfg.PackageID
		body["ledger_id"] = cfg.GlobalLedgerID
	}
	render.JSON(w, r, http.StatusOK, body)
}

// Ready reports whether the history index can be read.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		render.Error(w, r, apperr.Wrap(err, apperr.KindTransientUnavailable, "database unavailable"))
		return
	}
	render.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Error(w, r, apperr.New(apperr.KindNotFound, "route not found").WithDetail("path", r.URL.Path))
}
