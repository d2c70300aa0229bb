// Package app wires the ledger's collaborators from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/artifacts"
	"github.com/dvloznov/statement-ledger/internal/config"
	"github.com/dvloznov/statement-ledger/internal/csvimport"
	"github.com/dvloznov/statement-ledger/internal/grouping"
	infraBQ "github.com/dvloznov/statement-ledger/internal/infra/bigquery"
	"github.com/dvloznov/statement-ledger/internal/infra/sqlite"
	"github.com/dvloznov/statement-ledger/internal/parser"
	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/dvloznov/statement-ledger/internal/textextract"
	"github.com/rs/zerolog"
)

// App holds the opened resources behind a Service.
type App struct {
	Config   *config.Config
	Store    *sqlite.Store
	Service  *pipeline.Service
	Exporter *infraBQ.Exporter

	closers []func() error
}

// New opens the database, the artifact store and the optional Gemini and
// BigQuery clients described by cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Store, err = sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	var files artifacts.Store
	if cfg.Upload.GCSBucket != "" {
		gcs, err := artifacts.NewGCSStore(ctx, cfg.Upload.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		files = gcs
		log.Info().Str("bucket", cfg.Upload.GCSBucket).Msg("Storing artifacts in Cloud Storage")
	} else {
		local, err := artifacts.NewLocalStore(cfg.Upload.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		files = local
		log.Info().Str("dir", cfg.Upload.LocalDir).Msg("Storing artifacts on local disk")
	}

	text := textextract.Chain{textextract.PlainText{}}
	if cfg.Gemini.APIKey != "" {
		gemini, err := textextract.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		text = append(text, gemini)
		log.Info().Str("model", cfg.Gemini.Model).Msg("PDF text extraction enabled")
	} else {
		log.Warn().Msg("No Gemini API key configured - PDF statements will need pasted text")
	}

	deps := pipeline.Deps{
		Repo:      a.Store,
		Artifacts: files,
		Text:      text,
		Extractor: parser.NewExtractor(parser.Config{AmountCeilingMinor: cfg.Parser.AmountCeilingMinor}),
		Importer:  csvimport.NewImporter(),
		Grouper: grouping.NewEngine(a.Store, grouping.Config{
			MinGroupSize: cfg.Grouping.MinGroupSize,
			BatchSize:    cfg.Grouping.BatchSize,
			Blacklist:    cfg.Grouping.Blacklist,
		}),
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}

	if cfg.BigQuery.Project != "" {
		a.Exporter, err = infraBQ.NewExporter(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, a.Exporter.Close)
		deps.Exporter = a.Exporter
		log.Info().
			Str("project", cfg.BigQuery.Project).
			Str("dataset", cfg.BigQuery.Dataset).
			Msg("BigQuery export enabled")
	}

	a.Service = pipeline.NewService(deps)
	return a, nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
