package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/habedi/fintrack/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newTable returns a left-aligned table writing to w.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)       // Align all columns to the left
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT) // Align headers to the left
	table.SetAutoWrapText(false)                     // Disable text wrapping in all columns
	table.SetRowLine(false)                          // Disable row line breaks
	return table
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func oneLine(s string) string { return strings.ReplaceAll(s, "\n", " ") }

func expensesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List and record expenses",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show all expenses",
			RunE: func(cmd *cobra.Command, args []string) error {
				expenses, err := a.api.ListExpenses(cmd.Context())
				if err != nil {
					return err
				}
				if len(expenses) == 0 {
					cmd.Println("No expenses recorded yet. Use `fintrack expenses add` to record one.")
					return nil
				}
				table := newTable(cmd.OutOrStdout(), "Row", "Date", "Title", "Category", "Amount")
				for i, e := range expenses {
					table.Append([]string{fmt.Sprintf("%d", i+1), e.Date, oneLine(e.Title), e.Category, money(e.Amount)})
				}
				table.Render()
				log.Info().Msgf("Listed %d expenses.", len(expenses))
				return nil
			},
		},
		addExpenseCmd(a),
	)
	return cmd
}

func addExpenseCmd(a *app) *cobra.Command {
	var e client.Expense
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateNonEmptyString("title", e.Title); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			created, err := a.api.AddExpense(cmd.Context(), e)
			if err != nil {
				return err
			}
			cmd.Printf("Recorded expense %q (%s) with id %s.\n", created.Title, money(created.Amount), created.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&e.Title, "title", "t", "", "What the money was spent on")
	cmd.Flags().Float64VarP(&e.Amount, "amount", "a", 0, "Amount spent")
	cmd.Flags().StringVarP(&e.Category, "category", "c", "", "Category, e.g. food")
	cmd.Flags().StringVarP(&e.Date, "date", "d", "", "Date as YYYY-MM-DD")
	return cmd
}

func incomesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incomes",
		Short: "List and record incomes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show all incomes",
			RunE: func(cmd *cobra.Command, args []string) error {
				incomes, err := a.api.ListIncomes(cmd.Context())
				if err != nil {
					return err
				}
				if len(incomes) == 0 {
					cmd.Println("No incomes recorded yet. Use `fintrack incomes add` to record one.")
					return nil
				}
				table := newTable(cmd.OutOrStdout(), "Row", "Date", "Source", "Amount")
				for i, in := range incomes {
					table.Append([]string{fmt.Sprintf("%d", i+1), in.Date, oneLine(in.Source), money(in.Amount)})
				}
				table.Render()
				return nil
			},
		},
		addIncomeCmd(a),
	)
	return cmd
}

func addIncomeCmd(a *app) *cobra.Command {
	var in client.Income
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an income",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateNonEmptyString("source", in.Source); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			created, err := a.api.AddIncome(cmd.Context(), in)
			if err != nil {
				return err
			}
			cmd.Printf("Recorded income from %q (%s) with id %s.\n", created.Source, money(created.Amount), created.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Source, "source", "s", "", "Where the money came from")
	cmd.Flags().Float64VarP(&in.Amount, "amount", "a", 0, "Amount received")
	cmd.Flags().StringVarP(&in.Date, "date", "d", "", "Date as YYYY-MM-DD")
	return cmd
}

func goalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Show savings goals",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all savings goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			goals, err := a.api.ListGoals(cmd.Context())
			if err != nil {
				return err
			}
			if len(goals) == 0 {
				cmd.Println("No savings goals yet.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "Row", "Goal", "Saved", "Target", "Deadline")
			for i, g := range goals {
				table.Append([]string{fmt.Sprintf("%d", i+1), oneLine(g.Title), money(g.Saved), money(g.Target), g.Deadline})
			}
			table.Render()
			return nil
		},
	})
	return cmd
}

func bookmarksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Show saved reading",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all bookmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			bookmarks, err := a.api.ListBookmarks(cmd.Context())
			if err != nil {
				return err
			}
			if len(bookmarks) == 0 {
				cmd.Println("No bookmarks yet.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "Row", "Title", "URL")
			for i, b := range bookmarks {
				table.Append([]string{fmt.Sprintf("%d", i+1), oneLine(b.Title), b.URL})
			}
			table.Render()
			return nil
		},
	})
	return cmd
}
