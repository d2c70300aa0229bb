// Package commands implements the ledgerctl command tree.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/app"
	"github.com/dvloznov/statement-ledger/internal/config"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dbPath     string
	userID     string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Parse bank statements and group their counterparties",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "ledger.yaml", "path to the YAML config file")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVarP(&opts.userID, "user", "u", "local", "user id the command acts for")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(
		newMigrateCommand(opts),
		newIngestCommand(opts),
		newPasteCommand(opts),
		newReparseCommand(opts),
		newStatusCommand(opts),
		newStatementsCommand(opts),
		newTransactionsCommand(opts),
		newDeleteCommand(opts),
		newRefreshCommand(opts),
		newGroupCommand(opts),
		newCounterpartiesCommand(opts),
		newPromoteCommand(opts),
		newMergeAliasCommand(opts),
		newAccountsCommand(opts),
		newKPIsCommand(opts),
		newSyncNotionCommand(opts),
	)

	return rootCmd
}

// session is one opened App plus the caller identity.
type session struct {
	*app.App
	ctx context.Context
	rc  domain.RequestContext
}

// open loads configuration and opens the App. Logs go to stderr so stdout
// carries only command output.
func (o *options) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadOptional(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	log := logger.NewConsole(cmd.ErrOrStderr(), cfg.Log.Level)
	ctx := logger.WithContext(cmd.Context(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{
		App: a,
		ctx: ctx,
		rc:  domain.RequestContext{UserID: o.userID},
	}, nil
}

// run opens a session, calls fn and closes the session.
func (o *options) run(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
