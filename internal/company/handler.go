package company

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/expenseflow/expenseflow/internal/user"
	"github.com/expenseflow/expenseflow/internal/transport"
	"github.com/expenseflow/expenseflow/pkg/logger"
)

type ServiceAPI interface {
	GetByID(id int64) (*Company, error)
	UpdateCurrency(ctx context.Context, id int64, currency string) (*Company, error)
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

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := user.UserFromContext(r.Context())
	if !ok || caller == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	company, err := h.Service.GetByID(caller.CompanyID)
	if err != nil {
		h.Logger.Error("GetCompany: service error", "error", err, "company_id", caller.CompanyID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToCompanyResponse(company))
}

func (h *Handler) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	caller, ok := user.UserFromContext(r.Context())
	if !ok || caller == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto UpdateCurrencyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateCurrency: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	company, err := h.Service.UpdateCurrency(r.Context(), caller.CompanyID, dto.Currency)
	if err != nil {
		h.Logger.Error("UpdateCurrency: service error", "error", err, "company_id", caller.CompanyID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateCurrency: company currency changed",
		"company_id", caller.CompanyID,
		"currency", company.Currency)
	h.WriteJSON(w, http.StatusOK, ToCompanyResponse(company))
}
