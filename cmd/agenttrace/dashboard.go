package main

import (
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long:  "Open a live terminal dashboard showing metrics and recent traces from a running collector.",
	RunE:  runDashboard,
}

func init() {
	dashboardCmd.Flags().String("api", "http://localhost:8080", "collector API base URL")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api")

	model := tui.NewModel(tui.NewClient(apiURL), apiURL)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
