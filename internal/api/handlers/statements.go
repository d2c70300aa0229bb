package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/api/middleware"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/jobs"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/rs/zerolog"
)

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart framing.
const multipartOverhead = 1 << 20

// StatementsHandler handles statement endpoints.
type StatementsHandler struct {
	ledger    Ledger
	publisher jobs.Publisher
	maxBytes  int64
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler. maxBytes <= 0 uses
// pipeline.DefaultMaxUploadBytes.
func NewStatementsHandler(ledger Ledger, publisher jobs.Publisher, maxBytes int64, log zerolog.Logger) *StatementsHandler {
	if maxBytes <= 0 {
		maxBytes = pipeline.DefaultMaxUploadBytes
	}
	return &StatementsHandler{
		ledger:    ledger,
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// uploadResponse is an upload result plus the parse job queued for it.
type uploadResponse struct {
	*pipeline.UploadResult
	JobID string `json:"job_id,omitempty"`
}

// ListStatements handles GET /api/statements
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	rc := middleware.RequestContext(r)
	statements, err := h.ledger.ListStatements(r.Context(), rc, store.StatementFilter{
		Query:  r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list statements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// UploadStatement handles POST /api/statements
//
// The body is either multipart form data with a "file" part or the raw
// artifact with its name in the filename query parameter. A parse job is
// queued for every new statement.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	rc := middleware.RequestContext(r)

	res, err := h.ledger.Upload(r.Context(), rc, req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to upload statement")
		return
	}
	h.respondUploaded(w, r, rc, res)
}

// PasteText handles POST /api/statements/text
func (h *StatementsHandler) PasteText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text      string  `json:"text"`
		AccountID *string `json:"account_id"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rc := middleware.RequestContext(r)

	res, err := h.ledger.UploadText(r.Context(), rc, body.Text, body.AccountID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to store pasted text")
		return
	}
	h.respondUploaded(w, r, rc, res)
}

// ImportStatement handles POST /api/statements/import
//
// CSV and XLSX files are parsed before the response is written.
func (h *StatementsHandler) ImportStatement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.ImportTabular(r.Context(), middleware.RequestContext(r), req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to import statement")
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, res)
}

// ParseStatement handles POST /api/statements/{id}/parse
//
// The parse runs on the job queue unless wait=true is passed, in which case
// it runs inline and the parse result is returned.
func (h *StatementsHandler) ParseStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	var body struct {
		Force bool `json:"force"`
	}
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	force := body.Force || queryBool(r, "force")
	rc := middleware.RequestContext(r)

	if queryBool(r, "wait") {
		res, err := h.ledger.Parse(r.Context(), rc, statementID, pipeline.ParseOptions{Force: force})
		if err != nil {
			writeServiceError(w, h.log, err, "Failed to parse statement")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
		return
	}

	report, err := h.ledger.Status(r.Context(), rc, statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load statement")
		return
	}
	if !report.Statement.ParseStatus.CanStartParse() && !force {
		writeServiceError(w, h.log, store.ErrParseInProgress, "Failed to queue parse")
		return
	}

	job, err := h.enqueue(r, rc, statementID, force)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to queue parse")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"statement_id": statementID,
		"job_id":       job.JobID,
		"status":       string(job.Status),
	})
}

// GetStatement handles GET /api/statements/{id}
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	report, err := h.ledger.Status(r.Context(), middleware.RequestContext(r), statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// RenameStatement handles PATCH /api/statements/{id}
func (h *StatementsHandler) RenameStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := decodeJSON(r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.ledger.RenameStatement(r.Context(), middleware.RequestContext(r), statementID, body.Filename); err != nil {
		writeServiceError(w, h.log, err, "Failed to rename statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"statement_id": statementID, "filename": strings.TrimSpace(body.Filename)})
}

// DeleteStatement handles DELETE /api/statements/{id}
func (h *StatementsHandler) DeleteStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	if err := h.ledger.DeleteStatement(r.Context(), middleware.RequestContext(r), statementID); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete statement")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMetrics handles GET /api/statements/{id}/metrics
func (h *StatementsHandler) GetMetrics(w http.ResponseWriter, r *http.Request, statementID string) {
	metrics, err := h.ledger.StatementMetrics(r.Context(), middleware.RequestContext(r), statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load metrics")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, metrics)
}

// GetTransactions handles GET /api/statements/{id}/transactions
func (h *StatementsHandler) GetTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	txs, err := h.ledger.StatementTransactions(r.Context(), middleware.RequestContext(r), statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetText handles GET /api/statements/{id}/text
func (h *StatementsHandler) GetText(w http.ResponseWriter, r *http.Request, statementID string) {
	text, err := h.ledger.StatementText(r.Context(), middleware.RequestContext(r), statementID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load statement text")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"statement_id": statementID, "text": text})
}

// RefreshStatement handles POST /api/statements/{id}/refresh
//
// Without apply=true the check only reports.
func (h *StatementsHandler) RefreshStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	report, err := h.ledger.Refresh(r.Context(), middleware.RequestContext(r), statementID, queryBool(r, "apply"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to refresh statement")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// readUpload extracts an UploadRequest from r, writing an error response and
// returning false when it cannot.
func (h *StatementsHandler) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.UploadRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	var req pipeline.UploadRequest
	if id := r.URL.Query().Get("account_id"); id != "" {
		req.AccountID = &id
	}

	var (
		src io.Reader = r.Body
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			h.uploadReadError(w, ferr)
			return req, false
		}
		defer file.Close()
		src = file
		req.Filename = header.Filename
		req.MimeType = header.Header.Get("Content-Type")
		if id := r.FormValue("account_id"); id != "" {
			req.AccountID = &id
		}
	} else {
		req.Filename = r.URL.Query().Get("filename")
		if mediaType != "application/octet-stream" {
			req.MimeType = mediaType
		}
	}

	req.Data, err = io.ReadAll(src)
	if err != nil {
		h.uploadReadError(w, err)
		return req, false
	}
	if req.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Filename is required")
		return req, false
	}
	return req, true
}

func (h *StatementsHandler) uploadReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}
	h.log.Warn().Err(err).Msg("Failed to read upload")
	middleware.WriteError(w, http.StatusBadRequest, "Invalid upload")
}

// respondUploaded queues a parse for new statements and writes the result.
// A queue failure is logged; the statement stays uploaded and can be parsed
// later.
func (h *StatementsHandler) respondUploaded(w http.ResponseWriter, r *http.Request, rc domain.RequestContext, res *pipeline.UploadResult) {
	resp := uploadResponse{UploadResult: res}
	if res.Duplicate {
		middleware.WriteJSON(w, http.StatusOK, resp)
		return
	}

	job, err := h.enqueue(r, rc, res.StatementID, false)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("statement_id", res.StatementID).Msg("Failed to queue parse job")
	} else {
		resp.JobID = job.JobID
	}
	middleware.WriteJSON(w, http.StatusCreated, resp)
}

func (h *StatementsHandler) enqueue(r *http.Request, rc domain.RequestContext, statementID string, force bool) (*jobs.ParseStatementJob, error) {
	job := &jobs.ParseStatementJob{
		StatementID: statementID,
		UserID:      rc.UserID,
		RequestID:   rc.RequestID,
		Force:       force,
	}
	if err := h.publisher.PublishParseStatement(r.Context(), job); err != nil {
		return nil, err
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("statement_id", statementID).
		Bool("force", force).
		Msg("Parse job queued")
	return job, nil
}
