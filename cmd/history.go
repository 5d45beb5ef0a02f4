package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/history"
	"github.com/spf13/cobra"
)

var (
	historyDB    string
	historyLimit int
)

// historyCmd lists anomalies stored by earlier monitor runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List anomalies stored in the history database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if historyDB != "" {
			cfg.Monitor.HistoryDB = historyDB
		}
		if cfg.Monitor.HistoryDB == "" {
			return fmt.Errorf("no history database configured (use --db or monitor.history_db)")
		}

		db, err := history.OpenSQLite(cfg.Monitor.HistoryDB)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		entries, err := db.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, headerStyle.Render("No anomalies recorded"))
			return nil
		}

		counts, err := db.CountByTool(cmd.Context())
		if err != nil {
			return err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d anomalies across %d tool(s)", total, len(counts))))
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Time")+"\t"+titleStyle.Render("Severity")+"\t"+titleStyle.Render("Tool")+"\t"+titleStyle.Render("Confidence")+"\t"+titleStyle.Render("Query")+"\t")
		for _, e := range entries {
			sev := warningStyle.Render(e.Severity)
			if e.Severity == "HIGH" {
				sev = errorStyle.Render(e.Severity)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				dateStyle.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
				sev,
				e.Tool,
				countStyle.Render(strconv.FormatFloat(e.Confidence*100, 'f', 1, 64)+"%"),
				alert.Truncate(e.Query, 50),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database path (overrides config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of anomalies to list")
}
