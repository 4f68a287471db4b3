package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shepherdwind/bean-talk/internal/cli"
)

const dateLayout = "2006-01-02"

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show spending by account",
		Long: `Sum recorded spending per ledger account.

Without flags the report covers the last report.days days. --to is exclusive.`,
		RunE: runReport,
	}

	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date, exclusive (YYYY-MM-DD, default: tomorrow)")

	return cmd
}

// reportRange resolves the --from and --to flags against now.
func reportRange(from, to string, days int, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	end := today.AddDate(0, 0, 1)
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		end = t
	}

	if days <= 0 {
		days = 30
	}
	start := end.AddDate(0, 0, -days)
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		start = t
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s must be before --to %s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	start, end, err := reportRange(from, to, viper.GetInt("report.days"), time.Now())
	if err != nil {
		return err
	}

	journal, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	totals, err := journal.SpendingByAccount(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	title := fmt.Sprintf("%s Spending %s to %s", cli.ChartIcon, start.Format(dateLayout), end.AddDate(0, 0, -1).Format(dateLayout))
	fmt.Fprintln(out, cli.TitleStyle.Render(title))
	if len(totals) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No transactions recorded in this period"))
		return nil
	}

	rows := make([][]string, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, []string{t.Account, t.Total + " " + t.Currency, fmt.Sprintf("%d", t.Count)})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Account", "Total", "Transactions"}, rows))
	return nil
}
