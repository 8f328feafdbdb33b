package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/habedi/fintrack/pkg/pool"
	"github.com/habedi/fintrack/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type dashboard struct {
	summary   client.Summary
	expenses  []client.Expense
	incomes   []client.Income
	goals     []client.Goal
	bookmarks []client.Bookmark
}

type fetchTask struct {
	name  string
	fetch func(ctx context.Context, api *client.API, d *dashboard) error
}

// dashboardTasks write to distinct fields of the dashboard, so they can run concurrently.
var dashboardTasks = []fetchTask{
	{"summary", func(ctx context.Context, api *client.API, d *dashboard) (err error) {
		d.summary, err = api.Summary(ctx)
		return err
	}},
	{"expenses", func(ctx context.Context, api *client.API, d *dashboard) (err error) {
		d.expenses, err = api.ListExpenses(ctx)
		return err
	}},
	{"incomes", func(ctx context.Context, api *client.API, d *dashboard) (err error) {
		d.incomes, err = api.ListIncomes(ctx)
		return err
	}},
	{"goals", func(ctx context.Context, api *client.API, d *dashboard) (err error) {
		d.goals, err = api.ListGoals(ctx)
		return err
	}},
	{"bookmarks", func(ctx context.Context, api *client.API, d *dashboard) (err error) {
		d.bookmarks, err = api.ListBookmarks(ctx)
		return err
	}},
}

// dashboardCmd fetches every section at once. When the access token has expired
// the parallel requests all wait on a single refresh.
func dashboardCmd(a *app) *cobra.Command {
	var concurrency int
	var quiet bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show an overview of your finances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Concurrency
			}
			if err := validation.ValidateConcurrency(concurrency); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			d, err := loadDashboard(cmd, a.api, concurrency, quiet)
			if err != nil {
				return err
			}
			renderDashboard(cmd, d)
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of requests to run in parallel")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show progress")
	return cmd
}

func loadDashboard(cmd *cobra.Command, api *client.API, concurrency int, quiet bool) (*dashboard, error) {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(dashboardTasks),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Loading dashboard..."),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	d := &dashboard{}
	errs := pool.Run(cmd.Context(), dashboardTasks, concurrency, func(ctx context.Context, t fetchTask) error {
		if err := t.fetch(ctx, api, d); err != nil {
			log.Error().Err(err).Str("section", t.name).Msg("Failed to load dashboard section")
			return fmt.Errorf("%s: %w", t.name, err)
		}
		return nil
	}, func(int, error) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err := pool.FirstError(errs); err != nil {
		return nil, err
	}
	return d, nil
}

func renderDashboard(cmd *cobra.Command, d *dashboard) {
	cmd.Printf("Income:   %s\n", money(d.summary.TotalIncome))
	cmd.Printf("Expenses: %s\n", money(d.summary.TotalExpense))
	cmd.Printf("Balance:  %s\n", money(d.summary.Balance))

	if len(d.summary.ByCategory) > 0 {
		categories := make([]string, 0, len(d.summary.ByCategory))
		for c := range d.summary.ByCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		table := newTable(cmd.OutOrStdout(), "Category", "Spent")
		for _, c := range categories {
			table.Append([]string{c, money(d.summary.ByCategory[c])})
		}
		table.Render()
	}

	cmd.Printf("%d expenses, %d incomes, %d goals, %d bookmarks\n",
		len(d.expenses), len(d.incomes), len(d.goals), len(d.bookmarks))
	for _, g := range d.goals {
		pct := 0.0
		if g.Target > 0 {
			pct = g.Saved / g.Target * 100
		}
		cmd.Printf("Goal %q: %.0f%% of %s\n", g.Title, pct, money(g.Target))
	}
}
