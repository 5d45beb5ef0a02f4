package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/spf13/cobra"
)

const (
	sampleQueriesShown = 3
	sampleQueryWidth   = 60
)

var (
	baselineOut     string
	baselineSummary string
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Build and inspect the topic baseline",
}

// baselineBuildCmd learns a baseline from every captured session
var baselineBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Learn a baseline from captured sessions",
	Long: `Read the request log of every session in the data directory, learn the
topics queried through each tool, and save the baseline snapshot together with
a human-readable JSON summary.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if baselineOut != "" {
			cfg.Baseline.Path = baselineOut
		}
		if baselineSummary != "" {
			cfg.Baseline.SummaryPath = baselineSummary
		}

		logger := newLogger().With("baseline")
		printer := internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		builder := baseline.NewBuilder(cfg.DataDir, logger)

		var res *baseline.Result
		steps := []internal.ProgressStep{
			{
				Message: "Reading sessions from " + cfg.DataDir,
				Fn: func() error {
					var err error
					res, err = builder.Build(cmd.Context())
					return err
				},
			},
			{
				Message: "Saving baseline to " + cfg.Baseline.Path,
				Fn: func() error {
					return baseline.SaveSnapshot(cfg.Baseline.Path, res.Snapshot)
				},
			},
			{
				Message: "Writing summary to " + cfg.Baseline.SummaryPath,
				Fn: func() error {
					doc := baseline.NewSummaryDocument(res.Snapshot, res.Model)
					return baseline.WriteSummary(cfg.Baseline.SummaryPath, doc)
				},
			},
		}
		if err := printer.ShowProgressWithSteps(cmd.Context(), steps); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printSessionResults(out, res.Sessions)
		fmt.Fprintln(out)
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Total tools/call requests processed: %d", res.ToolCalls)))
		fmt.Fprintln(out)
		printServiceStats(out, res.Services)
		printLearnedTopics(out, baseline.Summarize(res.Model))

		printer.Success(fmt.Sprintf("Baseline saved: %d tool(s) from %d session(s)", len(res.Model.Tools()), len(res.Sessions)))
		return nil
	},
}

// baselineShowCmd prints the learned topics of a saved baseline
var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the topics of a saved baseline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if baselineOut != "" {
			cfg.Baseline.Path = baselineOut
		}

		model, snap, err := baseline.LoadModel(cfg.Baseline.Path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("Baseline "+cfg.Baseline.Path))
		fmt.Fprintf(out, "  Created: %s\n", dateStyle.Render(snap.CreatedAt.Format("2006-01-02 15:04:05")))
		fmt.Fprintf(out, "  Sessions: %s\n", countStyle.Render(fmt.Sprint(snap.TotalSessions)))
		fmt.Fprintf(out, "  Tools: %s\n\n", countStyle.Render(fmt.Sprint(len(model.Tools()))))
		if len(snap.Services) > 0 {
			printServiceStats(out, snap.Services)
		}
		printLearnedTopics(out, baseline.Summarize(model))
		return nil
	},
}

func printSessionResults(out io.Writer, sessions []baseline.SessionResult) {
	for _, s := range sessions {
		switch {
		case s.Missing:
			fmt.Fprintf(out, "  %s %s\n", warningStyle.Render("Warning: no requests.jsonl in"), s.Name)
		case s.Corrupt > 0:
			fmt.Fprintf(out, "  %s: %s tools/call requests (%d unreadable lines skipped)\n",
				s.Name, countStyle.Render(fmt.Sprint(s.ToolCalls)), s.Corrupt)
		default:
			fmt.Fprintf(out, "  %s: %s tools/call requests\n", s.Name, countStyle.Render(fmt.Sprint(s.ToolCalls)))
		}
	}
}

func printServiceStats(out io.Writer, services map[string]*baseline.ServiceStats) {
	fmt.Fprintln(out, sectionStyle.Render("Service Statistics"))
	fmt.Fprintln(out)

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := services[name]
		fmt.Fprintf(out, "Service: %s\n", titleStyle.Render(name))
		fmt.Fprintf(out, "  Total calls: %d\n", st.TotalCalls)
		fmt.Fprintf(out, "  Unique queries: %d\n", len(st.UniqueQueries))
		fmt.Fprintf(out, "  Sessions: %d\n", len(st.Sessions))
		fmt.Fprintln(out, "  Tools used:")
		for _, tc := range st.ToolUsage() {
			fmt.Fprintf(out, "    - %s: %d calls\n", tc.Topic, tc.Count)
		}
		if len(st.UniqueQueries) > 0 {
			fmt.Fprintln(out, "  Sample queries:")
			for i, q := range st.UniqueQueries {
				if i == sampleQueriesShown {
					break
				}
				fmt.Fprintf(out, "    - %s\n", idStyle.Render(alert.Truncate(q, sampleQueryWidth)))
			}
		}
		fmt.Fprintln(out)
	}
}

func printLearnedTopics(out io.Writer, tools []baseline.ToolSummary) {
	fmt.Fprintln(out, sectionStyle.Render("Learned Topics by Tool"))
	fmt.Fprintln(out)
	for _, ts := range tools {
		fmt.Fprintf(out, "Tool: %s\n", titleStyle.Render(ts.Tool))
		fmt.Fprintf(out, "  Total requests: %d\n", ts.TotalObservations)
		fmt.Fprintf(out, "  Unique topics: %d\n", ts.UniqueTopics)
		if len(ts.TopTopics) > 0 {
			fmt.Fprintln(out, "  Top topics:")
			for _, tc := range ts.TopTopics {
				fmt.Fprintf(out, "    - %s: %d\n", tc.Topic, tc.Count)
			}
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineBuildCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.PersistentFlags().StringVarP(&baselineOut, "out", "o", "", "Baseline snapshot path (overrides config)")
	baselineBuildCmd.Flags().StringVar(&baselineSummary, "summary", "", "Summary JSON path (overrides config)")
}
