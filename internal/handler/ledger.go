package handler

import (
	"net/http"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/render"
	"github.com/templui/piggybank/internal/service"
)

type LedgerHandler struct {
	ledgerService *service.LedgerService
}

func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledgerService.Stats(r.Context())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, stats)
}

// User returns one address's deposits and rewards. Unknown addresses get empty lists.
func (h *LedgerHandler) User(w http.ResponseWriter, r *http.Request) {
	view, err := h.ledgerService.UserView(r.Context(), r.PathValue("address"))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, view)
}

func (h *LedgerHandler) Price(w http.ResponseWriter, r *http.Request) {
	q, ok := h.ledgerService.Price()
	if !ok {
		render.Error(w, r, apperr.New(apperr.KindTransientUnavailable, "price not yet known"))
		return
	}
	render.JSON(w, r, http.StatusOK, q)
}
