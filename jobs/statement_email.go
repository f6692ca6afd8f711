package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/statement"
)

// StatementEmailProcessor renders and delivers statement emails.
type StatementEmailProcessor struct {
	logger     *slog.Logger
	statements *statement.Service
	pdf        statement.PDFRenderer
	mailer     *Mailer
}

// NewStatementEmailProcessor constructs a processor. pdf may be nil; the
// email is then sent without an attachment.
func NewStatementEmailProcessor(logger *slog.Logger, statements *statement.Service, pdf statement.PDFRenderer, mailer *Mailer) *StatementEmailProcessor {
	return &StatementEmailProcessor{logger: logger, statements: statements, pdf: pdf, mailer: mailer}
}

// Handle processes TaskTypeStatementEmail tasks.
func (p *StatementEmailProcessor) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StatementEmailPayload
	if err := unmarshalPayload(t, &payload); err != nil {
		return asynq.SkipRetry
	}

	from, err := time.Parse("2006-01-02", payload.From)
	if err != nil {
		return asynq.SkipRetry
	}
	to, err := time.Parse("2006-01-02", payload.To)
	if err != nil {
		return asynq.SkipRetry
	}

	stmt, err := p.statements.Build(ctx, payload.CustomerID, from, to)
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}

	var pdfBytes []byte
	if p.pdf != nil {
		html, err := statement.RenderHTML(stmt)
		if err != nil {
			return fmt.Errorf("render statement: %w", err)
		}
		pdfBytes, err = p.pdf.RenderHTML(ctx, html)
		if err != nil {
			return fmt.Errorf("render statement pdf: %w", err)
		}
	}

	subject := fmt.Sprintf("Statement of account %s to %s", payload.From, payload.To)
	body := fmt.Sprintf(
		"Hi %s,\n\nPlease find attached your statement of account for the period %s to %s.\nClosing balance: %.2f\n",
		stmt.CustomerName, payload.From, payload.To, stmt.ClosingBalance,
	)
	if err := p.mailer.Send(payload.Recipient, subject, body, pdfBytes); err != nil {
		return fmt.Errorf("send statement email: %w", err)
	}

	p.logger.Info("statement email sent",
		slog.Int64("customer_id", payload.CustomerID),
		slog.String("recipient", payload.Recipient),
	)
	return nil
}
