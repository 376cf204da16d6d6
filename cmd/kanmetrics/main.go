package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/evanschultz/kanmetrics/internal/adapters/server"
	"github.com/evanschultz/kanmetrics/internal/adapters/storage/sqlite"
	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/config"
	"github.com/evanschultz/kanmetrics/internal/kpi"
	"github.com/evanschultz/kanmetrics/internal/platform"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{appName: platform.DefaultAppName}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("KANMETRICS_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("KANMETRICS_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "kanmetrics",
		Short:         "Kanban metrics and completion forecasts from a work item ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(opts, stdout),
		newImportCommand(opts, stderr),
		newExportCommand(opts, stdout, stderr),
		newReportCommand(opts, stdout, stderr),
		newBarsCommand(opts, stdout, stderr),
		newTimelineCommand(opts, stdout, stderr),
		newServeCommand(opts, stderr),
	)
	return root
}

func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "snapshot: %s\n", paths.SnapshotPath)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newImportCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot JSON file into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			rt, err := opts.open(stderr, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.flow("import", func() error {
				content, err := os.ReadFile(inPath)
				if err != nil {
					return fmt.Errorf("read import file: %w", err)
				}
				var snap app.Snapshot
				if err := json.Unmarshal(content, &snap); err != nil {
					return fmt.Errorf("decode snapshot json: %w", err)
				}
				if err := rt.svc.ImportSnapshot(cmd.Context(), snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database as a snapshot JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.open(stderr, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.flow("export", func() error {
				snap, err := rt.svc.ExportSnapshot(cmd.Context())
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				return writeJSON(stdout, outPath, snap)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newReportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		today, eta, from string
		incoming         int
		window           int
		throughputWidth  int
		format           string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute KPIs and the completion forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "json", "text":
			default:
				return fmt.Errorf("unsupported --format %q (want json or text)", format)
			}
			rt, err := opts.open(stderr, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			reportOpts := app.ReportOptions{
				Today:           config.ReportDate(rt.cfg.Report.Today, time.Time{}),
				ETAExpected:     config.ReportDate(rt.cfg.Report.ETAExpected, time.Time{}),
				IncomingStories: rt.cfg.Report.IncomingStories,
				LeadTimeWindow:  rt.cfg.Report.LeadTimeWindow,
				ThroughputWidth: throughputWidth,
			}
			if reportOpts.Today, err = dateFlag("today", today, reportOpts.Today); err != nil {
				return err
			}
			if reportOpts.ETAExpected, err = dateFlag("eta", eta, reportOpts.ETAExpected); err != nil {
				return err
			}
			if reportOpts.From, err = dateFlag("from", from, time.Time{}); err != nil {
				return err
			}
			if cmd.Flags().Changed("incoming") {
				reportOpts.IncomingStories = incoming
			}
			if cmd.Flags().Changed("window") {
				reportOpts.LeadTimeWindow = window
			}

			return rt.flow("report", func() error {
				report, err := rt.svc.BuildReport(cmd.Context(), reportOpts)
				if err != nil {
					return fmt.Errorf("build report: %w", err)
				}
				if format == "json" {
					return writeJSON(stdout, "-", report)
				}
				return renderReport(stdout, report)
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "reference date YYYY-MM-DD (default: config or current date)")
	cmd.Flags().StringVar(&eta, "eta", "", "expected delivery date YYYY-MM-DD (default: config or today)")
	cmd.Flags().StringVar(&from, "from", "", "first timeline date YYYY-MM-DD (default: project start)")
	cmd.Flags().IntVar(&incoming, "incoming", 0, "stories expected to join the backlog")
	cmd.Flags().IntVar(&window, "window", kpi.LeadTimeKPIWidth, "lead-time averaging window in business days")
	cmd.Flags().IntVar(&throughputWidth, "throughput-width", 1, "throughput comparison distance in business days")
	cmd.Flags().StringVar(&format, "format", "text", "output format: json|text")
	return cmd
}

func newBarsCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "bars",
		Short: "Print one status progress bar per work item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromDate, err := dateFlag("from", from, time.Time{})
			if err != nil {
				return err
			}
			toDate, err := dateFlag("to", to, time.Time{})
			if err != nil {
				return err
			}
			rt, err := opts.open(stderr, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.flow("bars", func() error {
				bars, err := rt.svc.ProgressBars(cmd.Context(), fromDate, toDate)
				if err != nil {
					return fmt.Errorf("progress bars: %w", err)
				}
				return renderBars(stdout, bars)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first timeline date YYYY-MM-DD (default: project start)")
	cmd.Flags().StringVar(&to, "to", "", "last timeline date YYYY-MM-DD (default: current date)")
	return cmd
}

func newTimelineCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the working days between two dates",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if from == "" || to == "" {
				return errors.New("--from and --to are required")
			}
			fromDate, err := dateFlag("from", from, time.Time{})
			if err != nil {
				return err
			}
			toDate, err := dateFlag("to", to, time.Time{})
			if err != nil {
				return err
			}
			rt, err := opts.open(stderr, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.flow("timeline", func() error {
				timeline, err := rt.svc.Timeline(fromDate, toDate)
				if err != nil {
					return fmt.Errorf("build timeline: %w", err)
				}
				for _, date := range timeline {
					_, _ = fmt.Fprintf(stdout, "%s %s\n", date.Format(time.DateOnly), calendar.Weekday(date))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD")
	return cmd
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over the HTTP API and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.open(stderr, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			serverCfg := server.Config{
				HTTPBind:      rt.cfg.Server.HTTPBind,
				APIEndpoint:   rt.cfg.Server.APIEndpoint,
				MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
				ServerName:    "kanmetrics",
				ServerVersion: version,
			}
			if cmd.Flags().Changed("http") {
				serverCfg.HTTPBind = httpBind
			}
			if cmd.Flags().Changed("api-endpoint") {
				serverCfg.APIEndpoint = apiEndpoint
			}
			if cmd.Flags().Changed("mcp-endpoint") {
				serverCfg.MCPEndpoint = mcpEndpoint
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.flow("serve", func() error {
				return server.Run(ctx, serverCfg, server.Dependencies{
					Reports: rt.svc,
					ReportDefaults: app.ReportOptions{
						Today:           config.ReportDate(rt.cfg.Report.Today, time.Time{}),
						ETAExpected:     config.ReportDate(rt.cfg.Report.ETAExpected, time.Time{}),
						IncomingStories: rt.cfg.Report.IncomingStories,
						LeadTimeWindow:  rt.cfg.Report.LeadTimeWindow,
					},
					Logger: rt.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "listen address (default: config server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST API mount path (default: config server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP mount path (default: config server.mcp_endpoint)")
	return cmd
}

// commandEnv wires config, logging, the calendar, storage and the service for one command.
type commandEnv struct {
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	svc     *app.Service
	restore func()
}

func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

func (o *rootOptions) open(stderr io.Writer, withRepo bool) (*commandEnv, error) {
	paths, err := o.paths()
	if err != nil {
		return nil, err
	}

	configPath := o.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KANMETRICS_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("KANMETRICS_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	rt := &commandEnv{cfg: cfg, logger: logger}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	table, err := cfg.VacationTable()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.restore, err = calendar.Override(table)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("install vacation table: %w", err)
	}
	logger.Debug("vacation table installed", "days", table.Len())

	engine, err := kpi.NewEngine(calendar.Default(), cfg.Policy(), kpi.WithLogger(logger))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("configure kpi engine: %w", err)
	}

	var repo app.Repository
	if withRepo {
		logger.Debug("opening sqlite repository", "db_path", cfg.Database.Path)
		rt.repo, err = sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			rt.Close()
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		repo = rt.repo
	}
	rt.svc = app.NewService(repo, engine, uuid.NewString, nil, app.ServiceConfig{
		Logger:         logger,
		LeadTimeWindow: cfg.Report.LeadTimeWindow,
	})
	return rt, nil
}

// flow logs the start and outcome of one command body.
func (r *commandEnv) flow(command string, fn func() error) error {
	r.logger.Info("command flow start", "command", command)
	if err := fn(); err != nil {
		r.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	r.logger.Info("command flow complete", "command", command)
	return nil
}

// Close releases the repository, the vacation table and the dev log file.
func (r *commandEnv) Close() {
	if r.repo != nil {
		if err := r.repo.Close(); err != nil {
			r.logger.Warn("sqlite close failed", "err", err)
		}
	}
	if r.restore != nil {
		r.restore()
	}
	if err := r.logger.Close(); err != nil {
		r.logger.Warn("close runtime log sink", "err", err)
	}
}

// dateFlag parses a YYYY-MM-DD flag value, returning fallback when empty.
func dateFlag(name, raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return date, nil
}

func writeJSON(stdout io.Writer, outPath string, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "-" || outPath == "" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write json to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	// Atomic replace: readers never observe a partial snapshot.
	if err := atomic.WriteFile(outPath, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

// parseBoolEnv reads a boolean environment variable, reporting whether it was set.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
