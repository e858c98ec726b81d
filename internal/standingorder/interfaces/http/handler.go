package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payroll-cloud/internal/audit"
	"payroll-cloud/internal/auth"
	orderapp "payroll-cloud/internal/standingorder/application"
	standingorder "payroll-cloud/internal/standingorder/domain"
)

// Handler provides standing order HTTP endpoints.
type Handler struct {
	service     *orderapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *orderapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("standing orders handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/standing-orders and /api/v1/standing-orders/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/standing-orders"), "/")
	switch {
	case r.Method == http.MethodPost && id == "":
		h.handleCreate(w, r)
	case r.Method == http.MethodGet && id == "":
		h.handleList(w, r)
	case r.Method == http.MethodPost && id == "run":
		h.handleRun(w, r)
	case r.Method == http.MethodGet && id != "":
		h.handleGet(w, r, id)
	case r.Method == http.MethodPut && id != "":
		h.handleUpdate(w, r, id)
	case r.Method == http.MethodDelete && id != "":
		h.handleDeactivate(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type orderPayload struct {
	MemberID          string `json:"member_id"`
	BranchID          string `json:"branch_id"`
	SourceClass       string `json:"source_class"`
	DestinationClass  string `json:"destination_class"`
	Amount            string `json:"amount"`
	Purpose           string `json:"purpose"`
	Frequency         string `json:"frequency"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	Priority          int    `json:"priority"`
	ExternalAccount   bool   `json:"external_account"`
	ExternalAccountNo string `json:"external_account_no"`
}

type orderResponse struct {
	ID                string `json:"id"`
	MemberID          string `json:"member_id"`
	BranchID          string `json:"branch_id"`
	SourceClass       string `json:"source_class"`
	DestinationClass  string `json:"destination_class,omitempty"`
	Amount            string `json:"amount"`
	Purpose           string `json:"purpose,omitempty"`
	Frequency         string `json:"frequency"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date,omitempty"`
	Priority          int    `json:"priority"`
	Active            bool   `json:"active"`
	ExternalAccount   bool   `json:"external_account"`
	ExternalAccountNo string `json:"external_account_no,omitempty"`
}

func (p orderPayload) toOrder() (*standingorder.Order, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, standingorder.ErrInvalidOrder
	}
	start, err := time.Parse("2006-01-02", p.StartDate)
	if err != nil {
		return nil, standingorder.ErrInvalidOrder
	}
	var end time.Time
	if p.EndDate != "" {
		end, err = time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			return nil, standingorder.ErrInvalidOrder
		}
	}
	return &standingorder.Order{
		MemberID:          p.MemberID,
		BranchID:          p.BranchID,
		SourceClass:       p.SourceClass,
		DestinationClass:  p.DestinationClass,
		Amount:            amount,
		Purpose:           p.Purpose,
		Frequency:         p.Frequency,
		StartDate:         start,
		EndDate:           end,
		Priority:          p.Priority,
		Active:            true,
		ExternalAccount:   p.ExternalAccount,
		ExternalAccountNo: p.ExternalAccountNo,
	}, nil
}

func toResponse(order *standingorder.Order) orderResponse {
	resp := orderResponse{
		ID:                order.ID,
		MemberID:          order.MemberID,
		BranchID:          order.BranchID,
		SourceClass:       order.SourceClass,
		DestinationClass:  order.DestinationClass,
		Amount:            order.Amount.StringFixed(2),
		Purpose:           order.Purpose,
		Frequency:         order.Frequency,
		StartDate:         order.StartDate.Format("2006-01-02"),
		Priority:          order.Priority,
		Active:            order.Active,
		ExternalAccount:   order.ExternalAccount,
		ExternalAccountNo: order.ExternalAccountNo,
	}
	if !order.EndDate.IsZero() {
		resp.EndDate = order.EndDate.Format("2006-01-02")
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	order, err := payload.toOrder()
	if err != nil {
		http.Error(w, "invalid order", http.StatusBadRequest)
		return
	}
	if !auth.CanActOnBranch(r.Context(), order.BranchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err := h.service.Create(r.Context(), order); err != nil {
		respondOrderError(w, err)
		return
	}
	h.logAudit(r, "standing_order.create", order.ID, order.BranchID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toResponse(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")
	if memberID == "" {
		http.Error(w, "member_id required", http.StatusBadRequest)
		return
	}
	orders, err := h.service.ListByMember(r.Context(), memberID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		if !auth.CanActOnBranch(r.Context(), order.BranchID) {
			continue
		}
		responses = append(responses, toResponse(order))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(responses)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	if !auth.CanActOnBranch(r.Context(), order.BranchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(order))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	existing, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	if !auth.CanActOnBranch(r.Context(), existing.BranchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	order, err := payload.toOrder()
	if err != nil {
		http.Error(w, "invalid order", http.StatusBadRequest)
		return
	}
	order.ID = id
	order.Active = existing.Active
	order.CreatedAt = existing.CreatedAt
	if err := h.service.Update(r.Context(), order); err != nil {
		respondOrderError(w, err)
		return
	}
	h.logAudit(r, "standing_order.update", id, order.BranchID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(order))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	if !auth.CanActOnBranch(r.Context(), order.BranchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		respondOrderError(w, err)
		return
	}
	h.logAudit(r, "standing_order.deactivate", id, order.BranchID)
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	Date string `json:"date"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	asOf := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		asOf = parsed
	}

	report, err := h.service.RunDue(r.Context(), asOf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "standing_order.run", asOf.Format("2006-01-02"), "")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Handler) logAudit(r *http.Request, action, resourceID, branchID string) {
	if h.auditLogger == nil {
		return
	}
	if branchID == "" {
		branchID = auth.BranchIDFromContext(r.Context())
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:           audit.NewID(),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "standing_order",
		ResourceID:   resourceID,
		BranchID:     branchID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		CreatedAt:    time.Now().UTC(),
	})
}

func respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, standingorder.ErrOrderNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, standingorder.ErrInvalidOrder):
		http.Error(w, "invalid order", http.StatusBadRequest)
	case errors.Is(err, standingorder.ErrUnresolvedAccount):
		http.Error(w, "unresolved external account", http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
