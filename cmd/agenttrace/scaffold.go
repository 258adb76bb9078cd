package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenttrace/agenttrace/internal/scaffold"
	"github.com/agenttrace/agenttrace/pkg/logger"
)

const defaultScaffoldTool = "xcodegen"

// scaffoldCmd bootstraps a new agent project with an external generator.
var scaffoldCmd = &cobra.Command{
	Use:   "scaffold [dir]",
	Short: "Bootstrap a new agent project",
	Long: `Bootstrap a new agent project in the given directory (default: current
directory) using an external project generator.

Exit codes:
  0 - Project generated
  1 - Generator missing or generation failed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScaffold,
}

func init() {
	scaffoldCmd.Flags().String("tool", defaultScaffoldTool, "project generator binary to invoke")
	rootCmd.AddCommand(scaffoldCmd)
}

func runScaffold(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	tool, _ := cmd.Flags().GetString("tool")

	log := logger.New(logger.Config{Level: "warn", Pretty: true})
	runner := scaffold.NewRunner(tool, os.Stdout, os.Stderr, log)

	if err := runner.Generate(dir); err != nil {
		if errors.Is(err, scaffold.ErrToolNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %s is not installed.\n\n", tool)
			fmt.Fprintf(os.Stderr, "Install it and try again, e.g.:\n")
			fmt.Fprintf(os.Stderr, "  brew install %s\n", tool)
			return fmt.Errorf("%s not found", tool)
		}
		return err
	}

	fmt.Println("Project generated.")
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. cd %s\n", dir)
	fmt.Println("  2. agenttrace serve")
	fmt.Println("  3. Point your agent's exporter at http://localhost:8080/api/v1/spans")
	return nil
}
