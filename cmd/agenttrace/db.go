package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/collector"
	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/pkg/models"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities",
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDBStats,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo traces for dashboard development",
	RunE:  runDBSeed,
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored spans",
	RunE:  runDBReset,
}

func init() {
	dbSeedCmd.Flags().Int("traces", 25, "number of demo traces to insert")
	dbResetCmd.Flags().Bool("yes", false, "confirm the deletion")
	dbResetCmd.Flags().Duration("older-than", 0, "only delete spans older than this (default: everything)")

	dbCmd.AddCommand(dbStatsCmd, dbSeedCmd, dbResetCmd)
	rootCmd.AddCommand(dbCmd)
}

func runDBStats(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read database stats: %w", err)
	}

	count, err := spans.NewRepository(db.Conn()).Count(context.Background())
	if err != nil {
		return fmt.Errorf("failed to count spans: %w", err)
	}

	fmt.Printf("Database %s\n", stats["path"])
	fmt.Printf("  spans:      %d\n", count)
	fmt.Printf("  size:       %v bytes\n", stats["size_bytes"])
	fmt.Printf("  page count: %v\n", stats["page_count"])
	fmt.Printf("  page size:  %v\n", stats["page_size"])
	return nil
}

func runDBSeed(cmd *cobra.Command, args []string) error {
	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	count, _ := cmd.Flags().GetInt("traces")
	repo := spans.NewRepository(db.Conn())
	costCalc := collector.NewCostCalculator()

	demoModels := []string{"claude-sonnet-4-20250514", "gpt-4o", "gpt-4o-mini", "gemini-1.5-flash"}

	inserted := 0
	for i := 0; i < count; i++ {
		// Spread traces over the past few hours and price an LLM call in each
		started := time.Now().UTC().Add(-time.Duration(i) * 7 * time.Minute)
		model := demoModels[i%len(demoModels)]

		batch := demoTrace(uuid.NewString(), started, 3+i%4)
		for j := range batch {
			if j == 1 {
				batch[j].OperationName = "llm.chat"
				batch[j].ModelName = &model
				in, out := 800+50*j, 300+20*i
				batch[j].TokensIn = &in
				batch[j].TokensOut = &out
				costCalc.Calculate(&batch[j])
			}
			if i%7 == 0 && j == len(batch)-1 {
				batch[j].Status = models.StatusError
				msg := "tool timeout"
				batch[j].StatusMessage = &msg
			}
		}

		if err := repo.InsertBatch(context.Background(), batch); err != nil {
			return fmt.Errorf("failed to insert demo trace: %w", err)
		}
		inserted += len(batch)
	}

	fmt.Printf("Inserted %d spans across %d traces\n", inserted, count)
	return nil
}

func runDBReset(cmd *cobra.Command, args []string) error {
	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return fmt.Errorf("refusing to delete spans without --yes")
	}

	db, _, err := openSpansDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := spans.NewRepository(db.Conn())
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	var purged int64
	if olderThan > 0 {
		purged, err = repo.PurgeBefore(context.Background(), time.Now().UTC().Add(-olderThan))
	} else {
		purged, err = repo.DeleteAll(context.Background())
	}
	if err != nil {
		return fmt.Errorf("failed to purge spans: %w", err)
	}

	fmt.Printf("Deleted %d spans\n", purged)
	return nil
}

// demoTrace builds one root span with n-1 staggered children.
func demoTrace(traceID string, started time.Time, n int) []models.Span {
	rootID := uuid.NewString()
	rootDuration := float64(n) * 400
	rootEnd := started.Add(time.Duration(rootDuration) * time.Millisecond)

	batch := []models.Span{{
		SpanID:        rootID,
		TraceID:       traceID,
		OperationName: "agent.run",
		ServiceName:   "demo-agent",
		SpanKind:      models.KindInternal,
		StartedAt:     started,
		EndedAt:       &rootEnd,
		DurationMs:    &rootDuration,
		Status:        models.StatusOk,
	}}

	for i := 1; i < n; i++ {
		childStart := started.Add(time.Duration(i) * 300 * time.Millisecond)
		duration := 80.0 + float64(i)*40
		childEnd := childStart.Add(time.Duration(duration) * time.Millisecond)
		batch = append(batch, models.Span{
			SpanID:        uuid.NewString(),
			TraceID:       traceID,
			ParentSpanID:  &rootID,
			OperationName: fmt.Sprintf("agent.step.%d", i),
			ServiceName:   "demo-agent",
			SpanKind:      models.KindInternal,
			StartedAt:     childStart,
			EndedAt:       &childEnd,
			DurationMs:    &duration,
			Status:        models.StatusOk,
		})
	}
	return batch
}
