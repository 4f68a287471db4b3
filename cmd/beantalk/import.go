package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/shepherdwind/bean-talk/internal/cli"
	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX statements",
		Long: `Import debits from OFX or QFX statements exported from your bank.

Transactions already in the journal are skipped, so overlapping statements can
be imported safely. Merchants without a category are booked to
ledger.default_expense_account and added to the category file for review.

Examples:
  # Import a single statement
  beantalk import ~/Downloads/dbs_2024_04.ofx

  # Import every statement in a directory
  beantalk import ~/Downloads/statements/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Parse and list transactions without recording them")
	cmd.Flags().String("account", "", "Asset account to book against (default: matched from ledger.asset_accounts)")

	return cmd
}

func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

func parseStatements(cmd *cobra.Command, parser *ofx.Parser, files []string) []model.Transaction {
	var all []model.Transaction
	seen := make(map[string]bool)

	for _, path := range files {
		f, err := os.Open(path) // #nosec G304
		if err != nil {
			slog.Error("Failed to open file", "file", path, "error", err)
			continue
		}
		txs, err := parser.ParseFile(cmd.Context(), f)
		_ = f.Close()
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}

		added := 0
		for _, tx := range txs {
			if seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			all = append(all, tx)
			added++
		}
		slog.Info("Processed file",
			"file", filepath.Base(path),
			"transactions_found", len(txs),
			"added", added,
			"duplicates", len(txs)-added)
	}
	return all
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	account, _ := cmd.Flags().GetString("account")
	out := cmd.OutOrStdout()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	p, err := newPipeline(cmd.Context(), nil, nil, 0)
	if err != nil {
		return err
	}
	defer p.Close()

	txs := parseStatements(cmd, ofx.NewParser(p.ledgerCfg.Currency), files)
	if len(txs) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
		return nil
	}
	if account != "" {
		if !strings.Contains(account, ":") {
			return fmt.Errorf("%q is not a ledger account", account)
		}
		for i := range txs {
			txs[i].Account = account
		}
	}

	if dryRun {
		rows := make([][]string, 0, len(txs))
		for _, tx := range txs {
			category, ok := p.store.FindCategory(tx.Merchant)
			if !ok {
				category = cli.SubtleStyle.Render(p.ledgerCfg.DefaultExpenseAccount)
			}
			rows = append(rows, []string{tx.Date.Format("2006-01-02"), tx.Merchant, tx.Amount.Display(), category})
		}
		fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d transaction(s) (dry run)", len(txs))))
		fmt.Fprintln(out, cli.RenderTable([]string{"Date", "Merchant", "Amount", "Category"}, rows))
		return nil
	}

	interrupts := cli.NewInterruptHandler(out, "Import", "Run the same import again; transactions already recorded are skipped.")
	ctx, stop := interrupts.HandleInterrupts(cmd.Context())
	defer stop()

	bar := progressbar.NewOptions(len(txs),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing transactions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	result, err := p.scanner.Import(ctx, txs, p.ledgerCfg.DefaultExpenseAccount, func() {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	})
	if err != nil && !interrupts.WasInterrupted() {
		return err
	}

	fmt.Fprintln(out, cli.RenderBox(cli.LedgerIcon+" Import summary", fmt.Sprintf(
		"Recorded:       %d\nUncategorized:  %d\nDuplicates:     %d\nCredits:        %d\nFailed:         %d",
		result.Recorded, result.Uncategorized, result.Duplicates, result.Credits, result.Failed)))
	if result.Uncategorized > 0 {
		fmt.Fprintln(out, cli.FormatInfo("Review new merchants with: beantalk categories list --unresolved"))
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d transaction(s) could not be imported, see the log", result.Failed)
	}
	return nil
}
