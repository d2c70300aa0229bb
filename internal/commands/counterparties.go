package commands

import (
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/notionsync"
	"github.com/spf13/cobra"
)

func newGroupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "group",
		Short: "Cluster unassigned transactions into counterparties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				report, err := s.Service.RunGrouping(s.ctx, s.rc)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newCounterpartiesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "counterparties [counterparty-id]",
		Short: "List counterparties, or show one with its aliases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				if len(args) == 1 {
					detail, err := s.Service.GetCounterparty(s.ctx, s.rc, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, detail)
				}
				cps, err := s.Service.ListCounterparties(s.ctx, s.rc)
				if err != nil {
					return err
				}
				return printJSON(cmd, cps)
			})
		},
	}
}

func newPromoteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <transaction-id> <canonical-name>",
		Short: "Assign a transaction to a named counterparty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				cp, err := s.Service.Promote(s.ctx, s.rc, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, cp)
			})
		},
	}
}

func newMergeAliasCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-alias <counterparty-id> <alias>",
		Short: "Attach an alias and move matching transactions to a counterparty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				res, err := s.Service.MergeAlias(s.ctx, s.rc, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newAccountsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				accounts, err := s.Service.ListAccounts(s.ctx, s.rc)
				if err != nil {
					return err
				}
				return printJSON(cmd, accounts)
			})
		},
	}

	var (
		account             domain.Account
		masked, ifsc, branch string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account.AccountNumberMasked = optional(masked)
			account.IFSC = optional(ifsc)
			account.Branch = optional(branch)
			return opts.run(cmd, func(s *session) error {
				created, err := s.Service.AddAccount(s.ctx, s.rc, account)
				if err != nil {
					return err
				}
				return printJSON(cmd, created)
			})
		},
	}
	add.Flags().StringVar(&account.BankName, "bank", "", "bank name (required)")
	_ = add.MarkFlagRequired("bank")
	add.Flags().StringVar(&account.Currency, "currency", "", "ISO currency code, INR when empty")
	add.Flags().StringVar(&masked, "number", "", "masked account number")
	add.Flags().StringVar(&ifsc, "ifsc", "", "IFSC code")
	add.Flags().StringVar(&branch, "branch", "", "branch name")

	cmd.AddCommand(add)
	return cmd
}

func newKPIsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "kpis",
		Short: "Show dashboard totals and top counterparties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				kpis, err := s.Service.DashboardKPIs(s.ctx, s.rc)
				if err != nil {
					return err
				}
				return printJSON(cmd, kpis)
			})
		},
	}
}

func newSyncNotionCommand(opts *options) *cobra.Command {
	var (
		token, databaseID string
		dryRun            bool
	)

	cmd := &cobra.Command{
		Use:   "sync-notion",
		Short: "Mirror counterparties into a Notion database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				if token == "" {
					token = s.Config.Notion.Token
				}
				if databaseID == "" {
					databaseID = s.Config.Notion.DatabaseID
				}
				if token == "" || databaseID == "" {
					return fmt.Errorf("a Notion token and database id are required (flags, config or %s/%s)",
						"NOTION_TOKEN", "NOTION_DATABASE_ID")
				}

				client := notionsync.NewNotionClient(token)
				report, err := notionsync.SyncCounterparties(s.ctx, s.Store, client, databaseID, s.rc.UserID, dryRun)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}

	cmd.Flags().StringVar(&token, "notion-token", "", "Notion integration token")
	cmd.Flags().StringVar(&databaseID, "notion-db-id", "", "Notion database id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing to Notion")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
