package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/modules/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print a metrics summary",
	RunE:  runMetrics,
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Cost breakdown for LLM calls",
	RunE:  runCosts,
}

func init() {
	metricsCmd.Flags().Duration("window", 24*time.Hour, "time window to aggregate")
	costsCmd.Flags().Duration("window", 24*time.Hour, "time window to aggregate")
	costsCmd.Flags().String("group-by", "model", "group dimension (model, service, operation, day)")

	rootCmd.AddCommand(metricsCmd, costsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	window, _ := cmd.Flags().GetDuration("window")
	until := time.Now().UTC()
	since := until.Add(-window)

	summary, err := metrics.NewService(db.Conn()).Summary(context.Background(), since, until)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	fmt.Printf("Metrics for the last %s\n\n", window)
	fmt.Printf("  Spans:       %d\n", summary.TotalSpans)
	fmt.Printf("  Traces:      %d\n", summary.TotalTraces)
	fmt.Printf("  Tokens:      %d\n", summary.TotalTokens)
	fmt.Printf("  Cost:        $%.4f\n", summary.TotalCostUSD)
	fmt.Printf("  Errors:      %d (%.1f%%)\n", summary.ErrorCount, summary.ErrorRate*100)
	fmt.Printf("  Latency avg: %.0fms\n", summary.AvgLatencyMs)
	fmt.Printf("  Latency p50: %.0fms\n", summary.P50LatencyMs)
	fmt.Printf("  Latency p95: %.0fms\n", summary.P95LatencyMs)
	fmt.Printf("  Latency p99: %.0fms\n", summary.P99LatencyMs)
	return nil
}

func runCosts(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	window, _ := cmd.Flags().GetDuration("window")
	groupBy, _ := cmd.Flags().GetString("group-by")
	until := time.Now().UTC()
	since := until.Add(-window)

	costs, err := metrics.NewService(db.Conn()).Costs(context.Background(), groupBy, since, until)
	if err != nil {
		return fmt.Errorf("failed to compute costs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCALLS\tTOKENS\tCOST\n", toHeader(groupBy))
	var total float64
	for _, c := range costs {
		fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\n", c.Group, c.CallCount, c.TotalTokens, c.TotalCostUSD)
		total += c.TotalCostUSD
	}
	fmt.Fprintf(w, "\t\t\t$%.4f\n", total)
	return w.Flush()
}

func toHeader(groupBy string) string {
	switch groupBy {
	case metrics.GroupByService:
		return "SERVICE"
	case metrics.GroupByOperation:
		return "OPERATION"
	case metrics.GroupByDay:
		return "DAY"
	default:
		return "MODEL"
	}
}
