package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// PDFRenderer converts statement HTML into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// EmailEnqueuer submits a statement-email job for background delivery.
type EmailEnqueuer interface {
	EnqueueStatementEmail(ctx context.Context, customerID int64, from, to time.Time, recipient string) error
}

// Handler manages statement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pdf     PDFRenderer
	email   EmailEnqueuer
}

// NewHandler builds a Handler instance. pdf and email may be nil when the
// respective collaborators are not configured.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer, email EmailEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf, email: email}
}

// MountRoutes registers statement routes. Rendering and delivery are
// rate-limited separately from plain reads.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{id}/statement", h.getStatement)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/customers/{id}/statement.pdf", h.getStatementPDF)
		r.Post("/customers/{id}/statement/email", h.emailStatement)
	})
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	customerID, from, to, ok := h.parseParams(w, r)
	if !ok {
		return
	}

	stmt, err := h.service.Build(r.Context(), customerID, from, to)
	if err != nil {
		h.respondError(w, "build statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) getStatementPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "PDF rendering is not configured")
		return
	}

	customerID, from, to, ok := h.parseParams(w, r)
	if !ok {
		return
	}

	stmt, err := h.service.Build(r.Context(), customerID, from, to)
	if err != nil {
		h.respondError(w, "build statement", err)
		return
	}

	html, err := RenderHTML(stmt)
	if err != nil {
		h.respondError(w, "render statement", err)
		return
	}

	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.respondError(w, "render statement pdf", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="statement-%d-%s.pdf"`, customerID, to.Format(dateLayout)))
	_, _ = w.Write(pdf)
}

func (h *Handler) emailStatement(w http.ResponseWriter, r *http.Request) {
	if h.email == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Email Unavailable", "email delivery is not configured")
		return
	}

	customerID, from, to, ok := h.parseParams(w, r)
	if !ok {
		return
	}

	var req struct {
		Recipient string `json:"recipient"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	// Default to the customer's email on file.
	if req.Recipient == "" {
		stmt, err := h.service.Build(r.Context(), customerID, from, to)
		if err != nil {
			h.respondError(w, "build statement", err)
			return
		}
		req.Recipient = stmt.CustomerEmail
	}
	if req.Recipient == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no recipient address available")
		return
	}

	if err := h.email.EnqueueStatementEmail(r.Context(), customerID, from, to, req.Recipient); err != nil {
		h.respondError(w, "enqueue statement email", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) parseParams(w http.ResponseWriter, r *http.Request) (customerID int64, from, to time.Time, ok bool) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "customer ID must be numeric")
		return 0, from, to, false
	}

	from, err = time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "from must be YYYY-MM-DD")
		return 0, from, to, false
	}
	to, err = time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "to must be YYYY-MM-DD")
		return 0, from, to, false
	}
	return customerID, from, to, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
