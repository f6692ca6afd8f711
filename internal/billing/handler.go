package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler manages billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)

	r.Get("/payments", h.listPayments)
	r.Post("/payments", h.recordPayment)
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/allocations", h.allocate)
	r.Delete("/payments/{id}", h.deletePayment)

	r.Post("/credit-memos", h.createCreditMemo)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	issue, _ := time.Parse(dateLayout, req.IssueDate)
	due, _ := time.Parse(dateLayout, req.DueDate)

	input := CreateInvoiceInput{
		CustomerID: req.CustomerID,
		IssueDate:  issue,
		DueAt:      due,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, CreateInvoiceLineInput(l))
	}

	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.respondError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv.Invoice))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice ID must be numeric")
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}

	resp := struct {
		InvoiceResponse
		Lines       []InvoiceLine `json:"lines"`
		Allocations []Allocation  `json:"allocations"`
	}{toInvoiceResponse(inv.Invoice), inv.Lines, inv.Allocations}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	req := ListInvoicesRequest{
		Status: InvoiceStatus(r.URL.Query().Get("status")),
		Limit:  100,
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		req.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			req.Limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			req.Offset = parsed
		}
	}

	invoices, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}

	out := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	paidAt, _ := time.Parse(dateLayout, req.PaidAt)

	input := RecordPaymentInput{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		PaidAt:     paidAt,
		Method:     req.Method,
		Reason:     req.Reason,
	}
	for _, a := range req.Allocations {
		input.Allocations = append(input.Allocations, AllocationTarget(a))
	}

	payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(*payment))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment ID must be numeric")
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.respondError(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(*payment))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	req := ListPaymentsRequest{Limit: 100}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		req.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}

	payments, err := h.service.ListPayments(r.Context(), req)
	if err != nil {
		h.respondError(w, "list payments", err)
		return
	}

	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment ID must be numeric")
		return
	}

	var req AllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	payment, err := h.service.Allocate(r.Context(), id, AllocationTarget(req))
	if err != nil {
		h.respondError(w, "allocate payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(*payment))
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment ID must be numeric")
		return
	}

	if err := h.service.DeletePayment(r.Context(), id); err != nil {
		h.respondError(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createCreditMemo(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditMemoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	date, _ := time.Parse(dateLayout, req.Date)

	payment, err := h.service.CreateCreditMemo(r.Context(), CreateCreditMemoInput{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Date:       date,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, "create credit memo", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(*payment))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrExceedsUnallocated), errors.Is(err, ErrExceedsOutstanding),
		errors.Is(err, ErrCreditMemoImmutable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Allocation Rejected", err.Error())
	case errors.Is(err, ErrNonPositiveAmount), errors.Is(err, ErrCustomerRequired), errors.Is(err, ErrNoLines):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
