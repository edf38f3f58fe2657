// finbook-report prints a month's summary from a running finbook
// server as terminal tables.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"

	"github.com/olekukonko/tablewriter"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "finbook server address")
	year := flag.Int("year", time.Now().Year(), "report year")
	month := flag.Int("month", int(time.Now().Month()), "report month (1-12)")
	books := flag.String("books", "", "comma-separated book ids (empty = all books)")
	flag.Parse()

	summary, err := fetchMonthlySummary(*addr, *year, *month, *books)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("Monthly summary %04d-%02d\n\n", summary.Year, summary.Month)
	printTotals(summary)
	if len(summary.CategoryBreakdown) > 0 {
		fmt.Println("\nCategories")
		printCategories(summary.CategoryBreakdown)
	}
	if len(summary.DailySummaries) > 0 {
		fmt.Println("\nDays")
		printDays(summary.DailySummaries)
	}
}

func fetchMonthlySummary(addr string, year, month int, books string) (*domain.MonthlySummary, error) {
	endpoint := fmt.Sprintf("%s/v1/reports/monthly/%d/%d", strings.TrimRight(addr, "/"), year, month)
	if books != "" {
		endpoint += "?books=" + url.QueryEscape(books)
	}

	resp, err := http.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var summary domain.MonthlySummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func printTotals(s *domain.MonthlySummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Income", "Expense", "Net", "Txs", "Active Days", "Best Income Day", "Worst Expense Day"})
	table.Append([]string{
		money(s.TotalIncome),
		money(s.TotalExpense),
		money(s.NetAmount),
		fmt.Sprintf("%d", s.TransactionCount),
		fmt.Sprintf("%d", s.DaysWithTransactions),
		orDash(s.BiggestIncomeDay),
		orDash(s.BiggestExpenseDay),
	})
	table.Render()
}

func printCategories(breakdown []domain.CategoryAggregation) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Category", "Type", "Total", "Count", "Avg", "Share"})
	for _, c := range breakdown {
		table.Append([]string{
			c.Name,
			c.Type,
			money(c.TotalAmount),
			fmt.Sprintf("%d", c.TransactionCount),
			money(c.AverageAmount),
			fmt.Sprintf("%.1f%%", c.Percentage),
		})
	}
	table.Render()
}

func printDays(days []domain.DailySummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Income", "Expense", "Net", "Txs"})
	for _, d := range days {
		table.Append([]string{
			d.Date,
			money(d.TotalIncome),
			money(d.TotalExpense),
			money(d.NetAmount),
			fmt.Sprintf("%d", d.TransactionCount),
		})
	}
	table.Render()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
