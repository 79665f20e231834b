package handler

import (
	"net/http"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ctxkeys"
	"github.com/templui/piggybank/internal/model"
	"github.com/templui/piggybank/internal/render"
	"github.com/templui/piggybank/internal/service"
)

type GoalHandler struct {
	goalService   *service.GoalService
	exportService *service.ExportService
}

func NewGoalHandler(goalService *service.GoalService, exportService *service.ExportService) *GoalHandler {
	return &GoalHandler{
		goalService:   goalService,
		exportService: exportService,
	}
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	parent, err := addressParam(r, "parent_address")
	if err != nil {
		render.Error(w, r, err)
		return
	}
	child, err := addressParam(r, "child_address")
	if err != nil {
		render.Error(w, r, err)
		return
	}

	goals, err := h.goalService.Goals(r.Context(), model.GoalFilter{
		GuardianAddress:  parent,
		DependentAddress: child,
		Page:             page.Page,
		Limit:            page.Limit,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, goals.Items, goals.Total)
}

func (h *GoalHandler) Show(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		render.Error(w, r, err)
		return
	}

	goal, err := h.goalService.Goal(r.Context(), goalID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, goal)
}

func (h *GoalHandler) Deposits(w http.ResponseWriter, r *http.Request) {
	goalID, page, err := goalPage(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	deposits, err := h.goalService.Deposits(r.Context(), goalID, page)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, deposits.Items, deposits.Total)
}

func (h *GoalHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	goalID, page, err := goalPage(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	withdrawals, err := h.goalService.Withdrawals(r.Context(), goalID, page)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, withdrawals.Items, withdrawals.Total)
}

// Requests lists a goal's withdrawal requests, optionally narrowed by status and requester.
func (h *GoalHandler) Requests(w http.ResponseWriter, r *http.Request) {
	goalID, page, err := goalPage(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	requester, err := addressParam(r, "requester")
	if err != nil {
		render.Error(w, r, err)
		return
	}

	requests, err := h.goalService.Requests(r.Context(), model.RequestFilter{
		GoalID:    goalID,
		Requester: requester,
		Status:    model.ApprovalOutcome(r.URL.Query().Get("status")),
		Page:      page.Page,
		Limit:     page.Limit,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, requests.Items, requests.Total)
}

func (h *GoalHandler) RequesterRequests(w http.ResponseWriter, r *http.Request) {
	requester, err := pathID(r, "address")
	if err != nil {
		render.Error(w, r, err)
		return
	}
	page, err := pageParams(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	requests, err := h.goalService.Requests(r.Context(), model.RequestFilter{
		Requester: requester,
		Status:    model.ApprovalOutcome(r.URL.Query().Get("status")),
		Page:      page.Page,
		Limit:     page.Limit,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, requests.Items, requests.Total)
}

// PendingApprovals lists undecided requests on goals the authenticated wallet guards.
func (h *GoalHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	requests, err := h.goalService.PendingApprovals(r.Context(), ctxkeys.Wallet(r.Context()), page)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.Paged(w, r, requests.Items, requests.Total)
}

func (h *GoalHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.exportService.Enabled() {
		render.Error(w, r, apperr.New(apperr.KindNotFound, "history export is not configured"))
		return
	}

	goalID, err := pathID(r, "id")
	if err != nil {
		render.Error(w, r, err)
		return
	}

	export, err := h.exportService.Export(r.Context(), ctxkeys.Wallet(r.Context()), goalID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusCreated, export)
}

func goalPage(r *http.Request) (string, model.PageFilter, error) {
	goalID, err := pathID(r, "id")
	if err != nil {
		return "", model.PageFilter{}, err
	}
	page, err := pageParams(r)
	if err != nil {
		return "", model.PageFilter{}, err
	}
	return goalID, page, nil
}
