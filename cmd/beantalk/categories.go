package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shepherdwind/bean-talk/internal/category"
	"github.com/shepherdwind/bean-talk/internal/cli"
	"github.com/shepherdwind/bean-talk/internal/config"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Inspect and edit the merchant category mapping",
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesSetCmd())

	return cmd
}

func categoriesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List merchants and their categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			unresolvedOnly, _ := cmd.Flags().GetBool("unresolved")
			accountsOnly, _ := cmd.Flags().GetBool("accounts")

			store, err := category.Open(config.CategoryPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if accountsOnly {
				fmt.Fprintln(out, cli.FormatTitle("Categories"))
				for _, c := range store.Categories() {
					fmt.Fprintln(out, "  "+c)
				}
				return nil
			}

			var rows [][]string
			unresolved := 0
			for _, e := range store.Entries() {
				if e.Category == "" {
					unresolved++
				} else if unresolvedOnly {
					continue
				}
				shown := e.Category
				if shown == "" {
					shown = cli.WarningStyle.Render("(unresolved)")
				}
				rows = append(rows, []string{e.Merchant, shown})
			}

			fmt.Fprintln(out, cli.FormatTitle("Merchant categories"))
			if len(rows) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No merchants to show"))
				return nil
			}
			fmt.Fprintln(out, cli.RenderTable([]string{"Merchant", "Category"}, rows))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("\n%d merchant(s), %d unresolved, file %s",
				len(store.Entries()), unresolved, store.Path())))
			return nil
		},
	}

	cmd.Flags().BoolP("unresolved", "u", false, "Only show merchants without a category")
	cmd.Flags().Bool("accounts", false, "Only list the distinct categories in use")

	return cmd
}

func categoriesSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <merchant> <category>",
		Short: "Set the category of a merchant",
		Long: `Set the ledger account a merchant is booked to.

Example:
  beantalk categories set "KOPITIAM" Expenses:Food:Hawker`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchant := strings.TrimSpace(args[0])
			account := strings.TrimSpace(args[1])
			if merchant == "" {
				return fmt.Errorf("merchant must not be empty")
			}
			if !strings.Contains(account, ":") {
				return fmt.Errorf("%q is not a ledger account (expected e.g. Expenses:Food)", account)
			}

			store, err := category.Open(config.CategoryPath())
			if err != nil {
				return err
			}
			if err := store.AddUnresolvedMerchant(merchant, account); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s → %s", merchant, account)))
			return nil
		},
	}
}
