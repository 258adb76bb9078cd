package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/internal/modules/traces"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// openSpansDB opens the spans database for read-side CLI commands.
func openSpansDB() (*database.DB, *config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "spans.db"),
		Profile: database.ProfileStandard,
		Name:    "spans",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spans database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate spans database: %w", err)
	}
	return db, cfg, nil
}

func formatDuration(ms *float64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fms", *ms)
}

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect stored traces",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent traces",
	RunE:  runTracesList,
}

var tracesShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Show all spans of a trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracesShow,
}

var tracesExportCmd = &cobra.Command{
	Use:   "export <trace-id>",
	Short: "Export a trace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracesExport,
}

func init() {
	tracesListCmd.Flags().Int("limit", 20, "maximum traces to list")
	tracesListCmd.Flags().String("service", "", "filter by service name")
	tracesListCmd.Flags().String("status", "", "filter by status (ok, error)")

	tracesCmd.AddCommand(tracesListCmd, tracesShowCmd, tracesExportCmd)
	rootCmd.AddCommand(tracesCmd)
}

func runTracesList(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	service, _ := cmd.Flags().GetString("service")
	status, _ := cmd.Flags().GetString("status")

	repo := traces.NewRepository(db.Conn(), spans.NewRepository(db.Conn()))
	query := models.TraceQuery{Service: service, Status: models.SpanStatus(status), Limit: limit}
	summaries, err := repo.List(context.Background(), query)
	if err != nil {
		return fmt.Errorf("failed to list traces: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE ID\tROOT OPERATION\tSERVICE\tSPANS\tDURATION\tCOST\tSTATUS")
	for _, t := range summaries {
		status := "ok"
		if t.HasErrors() {
			status = "error"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t$%.4f\t%s\n",
			t.TraceID, t.RootOperation, t.ServiceName, t.SpanCount, formatDuration(t.DurationMs), t.TotalCostUSD, status)
	}
	return w.Flush()
}

func runTracesShow(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := traces.NewRepository(db.Conn(), spans.NewRepository(db.Conn()))
	detail, err := repo.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load trace: %w", err)
	}
	if detail == nil {
		return fmt.Errorf("trace %s not found", args[0])
	}

	fmt.Printf("Trace %s (%s)\n", detail.TraceID, detail.ServiceName)
	fmt.Printf("  root:     %s\n", detail.RootOperation)
	fmt.Printf("  spans:    %d (%d errors)\n", detail.SpanCount, detail.ErrorCount)
	fmt.Printf("  duration: %s\n", formatDuration(detail.DurationMs))
	fmt.Printf("  tokens:   %d\n", detail.TotalTokens)
	fmt.Printf("  cost:     $%.4f\n\n", detail.TotalCostUSD)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SPAN ID\tOPERATION\tKIND\tDURATION\tSTATUS\tMODEL\tCOST")
	for _, sp := range detail.Spans {
		duration := "-"
		if sp.DurationMs != nil {
			duration = fmt.Sprintf("%.0fms", *sp.DurationMs)
		}
		model, cost := "-", "-"
		if sp.ModelName != nil {
			model = *sp.ModelName
		}
		if sp.CostUSD != nil {
			cost = fmt.Sprintf("$%.4f", *sp.CostUSD)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sp.SpanID, sp.OperationName, sp.SpanKind, duration, sp.Status, model, cost)
	}
	return w.Flush()
}

func runTracesExport(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := traces.NewRepository(db.Conn(), spans.NewRepository(db.Conn()))
	detail, err := repo.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load trace: %w", err)
	}
	if detail == nil {
		return fmt.Errorf("trace %s not found", args[0])
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(detail)
}
