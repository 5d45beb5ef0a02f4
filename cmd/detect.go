package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/iksnae/mcp-sentinel/internal/detector"
	"github.com/spf13/cobra"
)

var (
	detectBaseline string
	detectJSON     bool
)

// detectCmd scores one query against the saved baseline without learning it
var detectCmd = &cobra.Command{
	Use:   "detect <tool> <query...>",
	Short: "Score a single query against the baseline",
	Long: `Score a query for a tool against the saved baseline and print the
verdict. The baseline is never modified.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if detectBaseline != "" {
			cfg.Baseline.Path = detectBaseline
		}

		model, _, err := baseline.LoadModel(cfg.Baseline.Path)
		if err != nil {
			return err
		}
		scorer := detector.NewScorer(model, detector.Options{
			Sensitivity: cfg.Sensitivity(),
			MinHistory:  cfg.MinHistory(),
			TopK:        cfg.Detector.TopK,
		})

		res := scorer.Detect(args[0], strings.Join(args[1:], " "))
		out := cmd.OutOrStdout()

		if detectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		verdict := successStyle.Render("NORMAL")
		if res.IsAnomaly {
			verdict = errorStyle.Render("ANOMALY (" + res.Severity() + ")")
		}
		fmt.Fprintf(out, "Tool: %s\n", res.Tool)
		fmt.Fprintf(out, "Query: %s\n", alert.Truncate(res.Query, 60))
		fmt.Fprintf(out, "Result: %s\n", verdict)
		fmt.Fprintf(out, "Confidence: %.1f%%\n", res.Confidence*100)
		if len(res.NewTopics) > 0 {
			fmt.Fprintf(out, "New topics: %s\n", strings.Join(res.NewTopics, ", "))
		}
		if len(res.CommonTopics) > 0 {
			fmt.Fprintf(out, "Expected topics: %s\n", strings.Join(res.CommonTopics, ", "))
		}
		fmt.Fprintf(out, "Reason: %s\n", res.Reason)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringVar(&detectBaseline, "baseline", "", "Baseline snapshot path (overrides config)")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print the result as JSON")
}
