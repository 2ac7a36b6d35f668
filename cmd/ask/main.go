// Package main provides the command line assistant: ask questions
// interactively or once, reload the dataset, and evaluate SQL generation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ecom-insights/backend/internal/bootstrap"
	"github.com/ecom-insights/backend/internal/evaluation"
	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/query"
	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/config"
	"github.com/ecom-insights/backend/pkg/logger"
)

const maxPrintedRows = 20

var (
	logLevel    string
	datasetPath string
	jsonOutput  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask analytics questions about the e-commerce dataset",
		Long: `ask turns natural-language questions into SQL, runs them against the
local dataset and prints the result, the suggested chart and a plain answer.
Without a question it starts an interactive session.`,
		SilenceUsage: true,
		RunE:         runAsk,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	initCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Drop and reload the dataset from the CSV files",
		Args:  cobra.NoArgs,
		RunE:  runInitDB,
	}

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure SQL generation accuracy against a golden question set",
		Args:  cobra.NoArgs,
		RunE:  runEval,
	}
	evalCmd.Flags().StringVar(&datasetPath, "dataset", "", "YAML golden set (default: built-in)")
	evalCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full report as JSON")

	rootCmd.AddCommand(initCmd, evalCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and services. Logs go to stderr so stdout only
// carries answers.
func setup(ctx context.Context, autoload bool) (*bootstrap.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logLevel, "console", "stderr"); err != nil {
		return nil, err
	}

	services, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if autoload {
		counts, err := services.EnsureDataset(ctx, false)
		if err != nil {
			services.Close()
			return nil, err
		}
		if counts != nil {
			fmt.Printf("Database %s initialized and loaded.\n", cfg.SQLite.Path)
		}
	}
	return services, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	services, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer services.Close()
	defer logger.Sync()

	out := cmd.OutOrStdout()

	if len(args) > 0 {
		return ask(ctx, out, services.Engine, strings.Join(args, " "))
	}

	fmt.Fprintln(out, "Ready to answer your questions.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nAsk your analytics question (type 'exit' or 'quit' to end): ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		if err := ask(ctx, out, services.Engine, question); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func ask(ctx context.Context, out io.Writer, engine *query.Engine, question string) error {
	ans, err := engine.Ask(ctx, question)
	if ans != nil && ans.SQL != "" {
		fmt.Fprintf(out, "\nGenerated SQL:\n%s\n", ans.SQL)
	}
	if errors.Is(err, llm.ErrUnanswerable) {
		fmt.Fprintln(out, "\nThis question cannot be answered from the available data.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nResults:")
	if ans.Result.Empty() {
		fmt.Fprintln(out, "No data found for this query.")
	} else {
		printResult(out, ans.Result)
	}

	if ans.Chart.IsNone() {
		fmt.Fprintln(out, "\nChart: none")
	} else {
		fmt.Fprintf(out, "\nChart: %s (%s)\n", ans.Chart.Kind, ans.Chart.Title)
	}

	fmt.Fprintf(out, "\nAnswer:\n%s\n", ans.Answer)
	return nil
}

func printResult(out io.Writer, res *table.Result) {
	rows := res.Strings()
	extra := 0
	if len(rows) > maxPrintedRows {
		extra = len(rows) - maxPrintedRows
		rows = rows[:maxPrintedRows]
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader(res.Names())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(rows)
	tw.Render()

	if extra > 0 {
		fmt.Fprintf(out, "... %d more rows\n", extra)
	}
}

func runInitDB(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	services, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer services.Close()
	defer logger.Sync()

	counts, err := services.EnsureDataset(ctx, true)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintf(out, "%-22s %d rows\n", name, counts[name])
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	services, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer services.Close()
	defer logger.Sync()

	dataset, err := loadEvalDataset()
	if err != nil {
		return err
	}

	report, err := evaluation.NewEvaluator(services.LLM, services.Store).RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprint(out, report.String())
	for _, item := range report.Items {
		if item.Outcome == evaluation.OutcomeMatch {
			continue
		}
		fmt.Fprintf(out, "\n[%s] %s\n", item.Outcome, item.Question)
		if item.GeneratedSQL != "" {
			fmt.Fprintf(out, "  generated: %s\n", item.GeneratedSQL)
		}
		fmt.Fprintf(out, "  reference: %s\n", item.ReferenceSQL)
		if item.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", item.Error)
		}
	}
	return nil
}

func loadEvalDataset() (*evaluation.Dataset, error) {
	if datasetPath == "" {
		return evaluation.DefaultDataset()
	}
	data, err := os.ReadFile(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return evaluation.LoadDataset(data)
}
