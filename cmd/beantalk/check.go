package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shepherdwind/bean-talk/internal/cli"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Scan Gmail once and record new transactions",
		Long: `Scan Gmail for unread DBS alerts once and exit.

Transactions whose merchant has a category are written to the ledger. Unknown
merchants are added to the category file with an empty category; their emails
stay unread so a later scan records them once a category is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			mailbox, err := initMailbox(ctx)
			if err != nil {
				return err
			}
			notifier, tgCfg := optionalTelegram()
			var chatID int64
			if tgCfg != nil {
				chatID = tgCfg.ChatID
			}

			p, err := newPipeline(ctx, mailbox, notifier, chatID)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.scanner.Trigger(ctx)
			if err != nil {
				return err
			}

			journaled, err := p.journal.CountTransactions(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderBox(cli.MailIcon+" Scan "+result.ScanID, fmt.Sprintf(
				"Emails:      %d\nRecorded:    %d\nUnresolved:  %d\nDuplicates:  %d\nSkipped:     %d\nFailed:      %d\nJournal:     %d",
				result.Seen, result.Recorded, result.Unresolved, result.Duplicates, result.Skipped, result.Failed, journaled)))
			if result.Unresolved > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
					"%d merchant(s) need a category: run `beantalk categories set` or answer on Telegram", result.Unresolved)))
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d email(s) could not be processed, see the log", result.Failed)
			}
			return nil
		},
	}
}
