// Package pipeline runs statement uploads and parses end to end and exposes
// the statement, counterparty and account operations the API and CLI share.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/statement-ledger/internal/artifacts"
	"github.com/dvloznov/statement-ledger/internal/checksum"
	"github.com/dvloznov/statement-ledger/internal/csvimport"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/normalize"
	"github.com/dvloznov/statement-ledger/internal/parser"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/dvloznov/statement-ledger/internal/textextract"
	"github.com/google/uuid"
)

var (
	// ErrEmptyPayload is returned for an upload without content.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrPayloadTooLarge is returned for an upload above the size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidInput is returned when a required argument is blank or
	// malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// Deps are the collaborators of a Service. Repo and Artifacts are required.
type Deps struct {
	Repo      store.Repository
	Artifacts artifacts.Store

	// Text defaults to textextract.PlainText.
	Text textextract.Provider

	// Extractor and Importer default to their zero configuration.
	Extractor *parser.Extractor
	Importer  *csvimport.Importer

	// Grouper runs after every successful parse when set.
	Grouper Grouper

	// Exporter mirrors parsed statements when set.
	Exporter Exporter

	// MaxUploadBytes defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Service is the statement ledger's application layer.
type Service struct {
	repo      store.Repository
	artifacts artifacts.Store
	text      textextract.Provider
	extractor *parser.Extractor
	importer  *csvimport.Importer
	grouper   Grouper
	exporter  Exporter
	maxBytes  int64
}

// NewService builds a Service from d, filling defaults.
func NewService(d Deps) *Service {
	s := &Service{
		repo:      d.Repo,
		artifacts: d.Artifacts,
		text:      d.Text,
		extractor: d.Extractor,
		importer:  d.Importer,
		grouper:   d.Grouper,
		exporter:  d.Exporter,
		maxBytes:  d.MaxUploadBytes,
	}
	if s.text == nil {
		s.text = textextract.PlainText{}
	}
	if s.extractor == nil {
		s.extractor = parser.NewExtractor(parser.Config{})
	}
	if s.importer == nil {
		s.importer = csvimport.NewImporter()
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxUploadBytes
	}
	return s
}

// UploadRequest is one artifact handed to Upload.
type UploadRequest struct {
	Filename  string
	MimeType  string
	AccountID *string
	Data      []byte
}

// UploadResult identifies the stored statement. Duplicate is set when the
// user already uploaded identical bytes; the existing statement is returned
// and nothing is written.
type UploadResult struct {
	StatementID string             `json:"statement_id"`
	Duplicate   bool               `json:"duplicate"`
	ParseStatus domain.ParseStatus `json:"parse_status"`
}

// Upload stores an artifact and creates its statement in status uploaded.
// Parsing is a separate step.
func (s *Service) Upload(ctx context.Context, rc domain.RequestContext, req UploadRequest) (*UploadResult, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("Upload: %w", ErrEmptyPayload)
	}
	if int64(len(req.Data)) > s.maxBytes {
		return nil, fmt.Errorf("Upload: %d bytes exceeds %d: %w", len(req.Data), s.maxBytes, ErrPayloadTooLarge)
	}
	log := logger.FromContext(ctx).With().Str("user_id", rc.UserID).Str("filename", req.Filename).Logger()

	sum := checksum.Content(req.Data)
	existing, err := s.repo.FindStatementByChecksum(ctx, rc.UserID, sum)
	if err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}
	if existing != nil {
		log.Info().Str("statement_id", existing.ID).Msg("Duplicate upload, returning existing statement")
		return &UploadResult{StatementID: existing.ID, Duplicate: true, ParseStatus: existing.ParseStatus}, nil
	}

	if req.AccountID != nil {
		if _, err := s.repo.GetAccount(ctx, rc.UserID, *req.AccountID); err != nil {
			return nil, fmt.Errorf("Upload: account: %w", err)
		}
	}

	filename := artifacts.SafeFilename(req.Filename)
	mimeType := detectMimeType(filename, req.MimeType, req.Data)
	id := uuid.New().String()

	ref, err := s.artifacts.Put(ctx, artifacts.Key(rc.UserID, id, filename), mimeType, req.Data)
	if err != nil {
		return nil, fmt.Errorf("Upload: storing artifact: %w", err)
	}

	st := &domain.Statement{
		ID:            id,
		UserID:        rc.UserID,
		AccountID:     req.AccountID,
		Filename:      filename,
		StorageRef:    ref,
		MimeType:      mimeType,
		Size:          int64(len(req.Data)),
		ContentSHA256: sum,
	}
	if err := s.repo.InsertStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}

	log.Info().
		Str("statement_id", st.ID).
		Str("storage_ref", ref).
		Int64("size", st.Size).
		Msg("Statement uploaded")
	return &UploadResult{StatementID: st.ID, ParseStatus: st.ParseStatus}, nil
}

// UploadText stores pasted statement text as a .txt artifact.
func (s *Service) UploadText(ctx context.Context, rc domain.RequestContext, text string, accountID *string) (*UploadResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("UploadText: %w", ErrEmptyPayload)
	}
	res, err := s.Upload(ctx, rc, UploadRequest{
		Filename:  pastedFilename,
		MimeType:  "text/plain; charset=utf-8",
		AccountID: accountID,
		Data:      []byte(text),
	})
	if err != nil {
		return nil, fmt.Errorf("UploadText: %w", err)
	}
	return res, nil
}

// ImportTabular stores a CSV or XLSX export and parses it right away. A
// duplicate upload is not parsed again.
func (s *Service) ImportTabular(ctx context.Context, rc domain.RequestContext, req UploadRequest) (*UploadResult, error) {
	if tabularKind(req.Filename, req.MimeType) == "" {
		return nil, fmt.Errorf("ImportTabular: %s is not a CSV or XLSX file: %w", req.Filename, ErrInvalidInput)
	}
	res, err := s.Upload(ctx, rc, req)
	if err != nil {
		return nil, fmt.Errorf("ImportTabular: %w", err)
	}
	if res.Duplicate {
		return res, nil
	}

	parsed, err := s.Parse(ctx, rc, res.StatementID, ParseOptions{})
	if err != nil {
		return nil, fmt.Errorf("ImportTabular: %w", err)
	}
	res.ParseStatus = parsed.Status
	return res, nil
}

// ParseOptions tunes Parse.
type ParseOptions struct {
	// Force restarts a statement stuck in parsing.
	Force bool
}

// ParseResult is the outcome of one parse.
type ParseResult struct {
	StatementID string             `json:"statement_id"`
	Status      domain.ParseStatus `json:"parse_status"`
	Mode        string             `json:"mode,omitempty"`
	TxCount     int                `json:"tx_count"`
	Skipped     []parser.LineNote  `json:"skipped"`
	Warnings    []parser.LineNote  `json:"warnings"`
	Grouping    *grouping.Report   `json:"grouping,omitempty"`
	Exported    int                `json:"exported"`
}

// Parse moves a statement through uploaded -> parsing -> parsed | error |
// needs_text. It returns store.ErrParseInProgress when another parse holds
// the statement. When no text can be extracted the statement waits in
// needs_text and Parse returns without error. Any other failure leaves the
// statement in error with the message recorded, and a later Parse retries.
func (s *Service) Parse(ctx context.Context, rc domain.RequestContext, statementID string, opts ParseOptions) (*ParseResult, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	log := logger.ForStatement(logger.FromContext(ctx), rc.UserID, statementID)
	ctx = logger.WithContext(ctx, log)

	st, err := s.repo.GetStatement(ctx, rc.UserID, statementID)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if err := s.repo.MarkParsing(ctx, rc.UserID, statementID, opts.Force); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}

	started := time.Now()
	log.Info().Str("filename", st.Filename).Bool("force", opts.Force).Msg("Parse started")
	s.parseLog(ctx, st, LevelInfo, "Parse started", map[string]any{"filename": st.Filename, "force": opts.Force})

	state := &PipelineState{RC: rc, Statement: st}
	err = s.parsePipeline().Execute(ctx, state)

	result := &ParseResult{
		StatementID: st.ID,
		Mode:        state.Mode,
		Skipped:     nonNilNotes(state.Skipped),
		Warnings:    nonNilNotes(state.Warnings),
	}

	// The statement must leave parsing even when the caller has gone away,
	// so the outcome is recorded on a context that outlives ctx.
	switch {
	case errors.Is(err, textextract.ErrUnavailable):
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
		defer cancel()

		msg := "no text could be extracted; upload the statement text instead"
		if err := s.repo.MarkUnparsed(recordCtx, st.ID, domain.ParseStatusNeedsText, msg); err != nil {
			return nil, fmt.Errorf("Parse: %w", err)
		}
		log.Info().Msg("Statement needs text")
		s.parseLog(recordCtx, st, LevelWarn, "Statement needs text", nil)
		result.Status = domain.ParseStatusNeedsText
		return result, nil

	case err != nil:
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
		defer cancel()

		msg := normalize.Truncate(err.Error(), MaxErrorMessageLen)
		if markErr := s.repo.MarkUnparsed(recordCtx, st.ID, domain.ParseStatusError, msg); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record parse error")
		}
		log.Error().Err(err).Msg("Parse failed")
		s.parseLog(recordCtx, st, LevelError, "Parse failed", map[string]any{"error": msg})
		return nil, fmt.Errorf("Parse: %w", err)
	}

	result.Status = domain.ParseStatusParsed
	result.TxCount = state.TxCount
	result.Grouping = state.Grouping
	result.Exported = state.Exported

	s.logNotes(ctx, st, LevelWarn, "Skipped line", state.Skipped)
	s.logNotes(ctx, st, LevelInfo, "Line warning", state.Warnings)
	s.parseLog(ctx, st, LevelInfo, "Parse finished", map[string]any{
		"mode":     state.Mode,
		"tx_count": state.TxCount,
		"skipped":  len(state.Skipped),
		"warnings": len(state.Warnings),
	})
	log.Info().
		Str("mode", state.Mode).
		Int("tx_count", state.TxCount).
		Int("skipped", len(state.Skipped)).
		Int("warnings", len(state.Warnings)).
		Dur("elapsed", time.Since(started)).
		Msg("Parse finished")
	return result, nil
}

func (s *Service) parsePipeline() *Pipeline {
	return NewPipeline(
		&LoadArtifactStep{Artifacts: s.artifacts},
		&ExtractRowsStep{Text: s.text, Extractor: s.extractor, Importer: s.importer},
		&PersistStep{Repo: s.repo},
		&GroupStep{Grouper: s.grouper},
		&ExportStep{Repo: s.repo, Exporter: s.exporter},
	)
}

// StatusReport is a statement with its most recent parse logs, newest first.
type StatusReport struct {
	Statement *domain.Statement  `json:"statement"`
	Logs      []*domain.ParseLog `json:"logs"`
}

// Status returns the statement row and its latest StatusLogLimit parse logs.
func (s *Service) Status(ctx context.Context, rc domain.RequestContext, statementID string) (*StatusReport, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}
	st, err := s.repo.GetStatement(ctx, rc.UserID, statementID)
	if err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}
	logs, err := s.repo.ListParseLogs(ctx, st.ID, StatusLogLimit)
	if err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}
	if logs == nil {
		logs = []*domain.ParseLog{}
	}
	return &StatusReport{Statement: st, Logs: logs}, nil
}

// parseLog records an operator-facing event. Failures are logged only.
func (s *Service) parseLog(ctx context.Context, st *domain.Statement, level, message string, meta map[string]any) {
	entry := &domain.ParseLog{
		StatementID: &st.ID,
		UserID:      st.UserID,
		Level:       level,
		Message:     message,
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err == nil {
			entry.Meta = string(b)
		}
	}
	if err := s.repo.InsertParseLog(ctx, entry); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("message", message).Msg("Failed to write parse log")
	}
}

func (s *Service) logNotes(ctx context.Context, st *domain.Statement, level, message string, notes []parser.LineNote) {
	for i, n := range notes {
		if i == maxLoggedNotes {
			s.parseLog(ctx, st, level, message, map[string]any{"omitted": len(notes) - i})
			return
		}
		s.parseLog(ctx, st, level, message, map[string]any{
			"line":   n.Line,
			"input":  normalize.Truncate(n.Input, maxNoteInput),
			"reason": n.Reason,
		})
	}
}

func nonNilNotes(notes []parser.LineNote) []parser.LineNote {
	if notes == nil {
		return []parser.LineNote{}
	}
	return notes
}

func detectMimeType(filename, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
