package expense

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/transport"
	"github.com/expenseflow/expenseflow/internal/user"
	"github.com/expenseflow/expenseflow/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Submit(ctx context.Context, employeeID int64, dto CreateExpenseDTO) (*Expense, error)
	Decide(ctx context.Context, expenseID, approverID int64, action approval.Action, comment string) (*Expense, approval.Outcome, error)
	AdminOverride(ctx context.Context, expenseID, adminID int64, action approval.Action, comment string) (*Expense, error)
	PendingForApprover(approverID int64) ([]*Expense, error)
	TeamExpenses(managerID int64) ([]*Expense, error)
	GetByID(expenseID int64, caller *user.User) (*Expense, error)
	ListForEmployee(employeeID int64, limit, offset int) ([]*Expense, error)
	ListForCompany(companyID int64, limit, offset int) ([]*Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exp, err := h.Service.Submit(r.Context(), u.ID, dto)
	if err != nil {
		h.Logger.Error("CreateExpense: service error", "error", err, "user_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, exp)
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.expenseIDParam(w, r)
	if !ok {
		return
	}

	exp, err := h.Service.GetByID(id, u)
	if err != nil {
		h.Logger.Error("GetExpense: service error", "error", err, "expense_id", id, "user_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}

// ListMyExpenses returns the caller's own claims.
func (h *Handler) ListMyExpenses(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	expenses, err := h.Service.ListForEmployee(u.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListMyExpenses: service error", "error", err, "user_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListCompanyExpenses returns every claim in the caller's company.
// Route-gated to managers and admins.
func (h *Handler) ListCompanyExpenses(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	expenses, err := h.Service.ListForCompany(u.CompanyID, limit, offset)
	if err != nil {
		h.Logger.Error("ListCompanyExpenses: service error", "error", err, "company_id", u.CompanyID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

// PendingApprovals returns the claims waiting on the caller's decision.
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	expenses, err := h.Service.PendingForApprover(u.ID)
	if err != nil {
		h.Logger.Error("PendingApprovals: service error", "error", err, "user_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": expenses})
}

// TeamExpenses returns claims of the caller's direct reports.
func (h *Handler) TeamExpenses(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	expenses, err := h.Service.TeamExpenses(u.ID)
	if err != nil {
		h.Logger.Error("TeamExpenses: service error", "error", err, "user_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": expenses})
}

func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.ActionApproved)
}

func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, approval.ActionRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action approval.Action) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.expenseIDParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Comment string `json:"comment,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	dto := DecisionDTO{Action: action, Comment: body.Comment}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, outcome, err := h.Service.Decide(r.Context(), id, u.ID, action, body.Comment)
	if err != nil {
		h.Logger.Error("decide: service error", "error", err, "expense_id", id, "approver_id", u.ID, "action", action)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, DecisionResponse{
		Outcome:     outcome.Kind,
		Status:      exp.Status,
		CurrentStep: exp.CurrentStep,
	})
}

// OverrideExpense is the admin-only side channel. Route-gated to admins; the
// engine checks the role again.
func (h *Handler) OverrideExpense(w http.ResponseWriter, r *http.Request) {
	u, ok := user.UserFromContext(r.Context())
	if !ok || u == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := h.expenseIDParam(w, r)
	if !ok {
		return
	}

	var dto OverrideDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := h.Service.AdminOverride(r.Context(), id, u.ID, dto.Action, dto.Comment)
	if err != nil {
		h.Logger.Error("OverrideExpense: service error", "error", err, "expense_id", id, "admin_id", u.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}

func (h *Handler) expenseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
