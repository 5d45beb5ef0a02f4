package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/iksnae/mcp-sentinel/internal/config"
	"github.com/iksnae/mcp-sentinel/internal/detector"
	"github.com/iksnae/mcp-sentinel/internal/history"
	"github.com/iksnae/mcp-sentinel/internal/metrics"
	"github.com/iksnae/mcp-sentinel/internal/monitor"
	"github.com/spf13/cobra"
)

// highAnomalyRate is the rate, in percent, above which the summary flags the run
const highAnomalyRate = 10.0

var (
	monitorWatch       bool
	monitorReplay      bool
	monitorInterval    time.Duration
	monitorMetricsAddr string
	monitorHistoryDB   string
	monitorBaseline    string
)

var (
	rateHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	rateOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// monitorCmd follows live sessions and scores every tool call
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch live sessions for anomalous tool queries",
	Long: `Follow the request and response logs of every session in the data
directory, trace each call, and raise an alert when a tool is queried about
topics its baseline has never seen.

Existing lines are skipped unless --replay is given. Press Ctrl+C to stop; a
summary is printed and retained anomalies are written to the history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyMonitorFlags(cmd, cfg)

		logger := newLogger().With("monitor")
		out := cmd.OutOrStdout()

		scorer := newScorer(cfg, logger, out)

		sinks := alert.Multi{alert.NewConsole(out)}
		if cfg.Alerts.Kafka.Enabled() {
			kafka, err := alert.NewKafkaSink(cfg.Alerts.Kafka.Brokers, cfg.Alerts.Kafka.Topic)
			if err != nil {
				return err
			}
			defer kafka.Close()
			sinks = append(sinks, kafka)
			logger.Infof("Publishing alerts to %s", cfg.Alerts.Kafka.Topic)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var m *metrics.Monitor
		if cfg.Monitor.MetricsAddr != "" {
			m = metrics.NewMonitor()
			go func() {
				if err := m.Serve(ctx, cfg.Monitor.MetricsAddr, logger); err != nil {
					logger.Errorf("metrics server: %v", err)
				}
			}()
		}

		tailer := monitor.NewTailer(monitor.Options{
			DataDir:     cfg.DataDir,
			Scorer:      scorer,
			Sink:        sinks,
			HistorySize: cfg.Monitor.HistorySize,
			Metrics:     m,
			Logger:      logger,
		})
		if !cfg.Monitor.Replay {
			if err := tailer.Prime(); err != nil {
				logger.Warnf("prime: %v", err)
			}
		}

		feed, err := newFeed(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		fmt.Fprintln(out, headerStyle.Render("Real-time MCP Monitor with Anomaly Detection"))
		fmt.Fprintln(out, strings.Repeat("=", 60))
		fmt.Fprintf(out, "Watching %s for new sessions and detecting anomalies...\n", cfg.DataDir)
		fmt.Fprintln(out, "Press Ctrl+C to stop")
		fmt.Fprintln(out)

		summary := tailer.Run(ctx, feed)
		printMonitorSummary(out, summary)

		return saveHistory(cfg, summary, out, logger)
	},
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("watch") {
		cfg.Monitor.Watch = monitorWatch
	}
	if flags.Changed("replay") {
		cfg.Monitor.Replay = monitorReplay
	}
	if flags.Changed("interval") && monitorInterval > 0 {
		cfg.Monitor.PollInterval = monitorInterval
	}
	if monitorMetricsAddr != "" {
		cfg.Monitor.MetricsAddr = monitorMetricsAddr
	}
	if monitorHistoryDB != "" {
		cfg.Monitor.HistoryDB = monitorHistoryDB
	}
	if monitorBaseline != "" {
		cfg.Baseline.Path = monitorBaseline
	}
}

// newScorer loads the baseline, falling back to an empty model so that every
// query reports insufficient history
func newScorer(cfg *config.Config, logger *internal.Logger, out io.Writer) *detector.Scorer {
	opts := detector.Options{
		Sensitivity: cfg.Sensitivity(),
		MinHistory:  cfg.MinHistory(),
		TopK:        cfg.Detector.TopK,
	}

	model, snap, err := baseline.LoadModel(cfg.Baseline.Path)
	if err != nil {
		logger.Warnf("Baseline not loaded: %v", err)
		fmt.Fprintln(out, warningStyle.Render("Warning: no baseline loaded, every query lacks history"))
		fmt.Fprintln(out, "  Run 'mcp-sentinel baseline build' to create a baseline.")
		return detector.NewScorer(baseline.NewModel(), opts)
	}

	total := 0
	for _, ts := range baseline.Summarize(model) {
		total += ts.TotalObservations
	}
	fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓ Baseline loaded from"), cfg.Baseline.Path)
	fmt.Fprintf(out, "  - Learned tools: %d\n", len(model.Tools()))
	fmt.Fprintf(out, "  - Total requests in baseline: %d\n", total)
	fmt.Fprintf(out, "  - Created: %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	return detector.NewScorer(model, opts)
}

func newFeed(cfg *config.Config, logger *internal.Logger) (monitor.ChangeFeed, error) {
	if !cfg.Monitor.Watch {
		return monitor.NewPollFeed(cfg.Monitor.PollInterval), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, &internal.StorageError{Path: cfg.DataDir, Op: "mkdir", Err: err}
	}
	return monitor.NewNotifyFeed(cfg.DataDir, cfg.Monitor.PollInterval, logger)
}

func printMonitorSummary(out io.Writer, s monitor.Summary) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintln(out, headerStyle.Render("Monitoring Summary"))
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "Total sessions: %d\n", s.Sessions)
	if s.LatestSession != "" {
		fmt.Fprintf(out, "Latest session: %s\n", s.LatestSession)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, sectionStyle.Render("Anomaly Detection Statistics"))
	fmt.Fprintf(out, "Total requests analyzed: %d\n", s.TotalRequests)
	fmt.Fprintf(out, "Total anomalies detected: %s\n", rateHighStyle.Render(fmt.Sprint(s.TotalAnomalies)))
	if s.TotalRequests > 0 {
		style := rateOKStyle
		if s.AnomalyRate > highAnomalyRate {
			style = rateHighStyle
		}
		fmt.Fprintf(out, "Anomaly rate: %s\n", style.Render(fmt.Sprintf("%.1f%%", s.AnomalyRate)))
	}

	if len(s.ByTool) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("Anomalies by tool"))
		for _, tc := range s.ByTool {
			fmt.Fprintf(out, "  - %s: %d\n", tc.Tool, tc.Count)
		}
	}

	if len(s.Recent) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("Recent anomalies"))
		for _, e := range s.Recent {
			fmt.Fprintf(out, "  - [%s] %s: %s\n", e.Time.Format("15:04:05"), e.Result.Tool, alert.Truncate(e.Result.Query, 40))
		}
	}
}

// saveHistory persists the retained anomalies to the JSON log and, when
// configured, the SQLite history
func saveHistory(cfg *config.Config, s monitor.Summary, out io.Writer, logger *internal.Logger) error {
	entries := s.HistoryEntries()
	if len(entries) == 0 {
		return nil
	}

	var errs []error
	path, err := history.WriteJSON(cfg.Monitor.HistoryDir, entries, time.Now())
	if err != nil {
		errs = append(errs, err)
	} else {
		fmt.Fprintf(out, "\n%s %s\n", successStyle.Render("✓ Anomaly log saved to:"), path)
	}

	if cfg.Monitor.HistoryDB != "" {
		db, err := history.OpenSQLite(cfg.Monitor.HistoryDB)
		if err != nil {
			errs = append(errs, err)
		} else {
			defer func() { _ = db.Close() }()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := db.Append(ctx, entries); err != nil {
				errs = append(errs, err)
			} else {
				logger.Infof("Stored %d anomalies in %s", len(entries), cfg.Monitor.HistoryDB)
			}
		}
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVarP(&monitorWatch, "watch", "w", false, "Use filesystem notifications instead of polling")
	monitorCmd.Flags().BoolVar(&monitorReplay, "replay", false, "Process lines already present at startup")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Poll interval (overrides config)")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	monitorCmd.Flags().StringVar(&monitorHistoryDB, "history-db", "", "Also store anomalies in this SQLite database")
	monitorCmd.Flags().StringVar(&monitorBaseline, "baseline", "", "Baseline snapshot path (overrides config)")
}
