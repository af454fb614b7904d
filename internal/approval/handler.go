package approval

import (
	"encoding/json"
	"net/http"

	"github.com/expenseflow/expenseflow/internal/user"
	"github.com/expenseflow/expenseflow/internal/transport"
	"github.com/expenseflow/expenseflow/pkg/logger"
)

type ServiceAPI interface {
	GetRule(companyID int64) (*Rule, error)
	UpdateRule(companyID int64, isManagerApproverRequired bool, sequence []Step) (*Rule, error)
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

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	caller, ok := user.UserFromContext(r.Context())
	if !ok || caller == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rule, err := h.Service.GetRule(caller.CompanyID)
	if err != nil {
		h.Logger.Error("GetRule: service error", "error", err, "company_id", caller.CompanyID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToRuleResponse(rule))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	caller, ok := user.UserFromContext(r.Context())
	if !ok || caller == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto UpdateRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateRule: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.Logger.Error("UpdateRule: validation error", "error", err)
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.Service.UpdateRule(caller.CompanyID, dto.IsManagerApproverRequired, dto.ToSteps())
	if err != nil {
		h.Logger.Error("UpdateRule: service error", "error", err, "company_id", caller.CompanyID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateRule: rule replaced",
		"company_id", caller.CompanyID,
		"sequence_len", len(rule.Sequence))
	h.WriteJSON(w, http.StatusOK, ToRuleResponse(rule))
}
