package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/dvloznov/statement-ledger/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *options) *cobra.Command {
	var bigQuery bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				if bigQuery {
					if s.Exporter == nil {
						return fmt.Errorf("bigquery.project is not configured")
					}
					if err := s.Exporter.EnsureTables(s.ctx); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date at %s\n", s.Config.Database.Path)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&bigQuery, "bigquery", false, "also create the BigQuery export tables")
	return cmd
}

func newIngestCommand(opts *options) *cobra.Command {
	var (
		accountID string
		noParse   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a statement file and parse it",
		Long: "Upload a statement file and parse it. CSV and XLSX exports go through the\n" +
			"column importer; text and PDF statements through the line extractor.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			req := pipeline.UploadRequest{Filename: filepath.Base(args[0]), Data: data}
			if accountID != "" {
				req.AccountID = &accountID
			}

			return opts.run(cmd, func(s *session) error {
				if isTabular(req.Filename) {
					res, err := s.Service.ImportTabular(s.ctx, s.rc, req)
					if err != nil {
						return err
					}
					return printJSON(cmd, res)
				}

				res, err := s.Service.Upload(s.ctx, s.rc, req)
				if err != nil {
					return err
				}
				if noParse || res.Duplicate {
					return printJSON(cmd, res)
				}
				return parseAndPrint(cmd, s, res.StatementID, false)
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id to attribute the statement to")
	cmd.Flags().BoolVar(&noParse, "no-parse", false, "store the file without parsing it")
	return cmd
}

func newPasteCommand(opts *options) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "paste [file]",
		Short: "Store statement text from a file or stdin and parse it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				src = f
			}
			text, err := io.ReadAll(src)
			if err != nil {
				return fmt.Errorf("reading text: %w", err)
			}
			var account *string
			if accountID != "" {
				account = &accountID
			}

			return opts.run(cmd, func(s *session) error {
				res, err := s.Service.UploadText(s.ctx, s.rc, string(text), account)
				if err != nil {
					return err
				}
				if res.Duplicate {
					return printJSON(cmd, res)
				}
				return parseAndPrint(cmd, s, res.StatementID, false)
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id to attribute the statement to")
	return cmd
}

func newReparseCommand(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reparse <statement-id>",
		Short: "Parse a stored statement again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				return parseAndPrint(cmd, s, args[0], force)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "restart a statement stuck in parsing")
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <statement-id>",
		Short: "Show a statement and its recent parse logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				report, err := s.Service.Status(s.ctx, s.rc, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newStatementsCommand(opts *options) *cobra.Command {
	var filter store.StatementFilter

	cmd := &cobra.Command{
		Use:   "statements",
		Short: "List statements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				list, err := s.Service.ListStatements(s.ctx, s.rc, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}

	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "filename substring to match")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum rows to return")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "rows to skip")
	return cmd
}

func newTransactionsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transactions <statement-id>",
		Short: "List a statement's transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				txs, err := s.Service.StatementTransactions(s.ctx, s.rc, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, txs)
			})
		},
	}
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <statement-id>",
		Short: "Delete a statement and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				if err := s.Service.DeleteStatement(s.ctx, s.rc, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted statement %s\n", args[0])
				return nil
			})
		},
	}
}

func newRefreshCommand(opts *options) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "refresh <statement-id>",
		Short: "Check a statement's stored rows and optionally repair them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				report, err := s.Service.Refresh(s.ctx, s.rc, args[0], apply)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "write the corrections")
	return cmd
}

func parseAndPrint(cmd *cobra.Command, s *session, statementID string, force bool) error {
	res, err := s.Service.Parse(s.ctx, s.rc, statementID, pipeline.ParseOptions{Force: force})
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func isTabular(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}
