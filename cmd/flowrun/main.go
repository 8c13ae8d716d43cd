package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/flowrun/internal/config"
	"github.com/san-kum/flowrun/internal/loader"
	"github.com/san-kum/flowrun/internal/runner"
	"github.com/san-kum/flowrun/internal/storage"
	"github.com/san-kum/flowrun/internal/tui"
	"github.com/spf13/cobra"
)

var (
	configFile   string
	dataDir      string
	timeoutSec   int
	live         bool
	keepExisting bool
	preflight    bool
	calcMode     string
	logLevel     string
	logFormat    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowrun",
		Short: "headless flowsheet recalculation driver",
		Long: `flowrun loads a flowsheet document, enables its script blocks for
unattended execution, and recalculates it with two strategies: an
incremental pass over dirty objects and an explicit-order pass. Each
pass saves the recalculated flowsheet and a timing log next to the
input file.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run archive directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	runCmd := &cobra.Command{
		Use:   "run [flowsheet]",
		Short: "run both calculation passes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBoth,
	}
	runCmd.Flags().IntVar(&timeoutSec, "timeout", 0, "calculation timeout in seconds (overrides config)")
	runCmd.Flags().BoolVar(&live, "live", false, "show live per-object progress")
	runCmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "fail instead of overwriting existing outputs")
	runCmd.Flags().BoolVar(&preflight, "preflight", false, "resolve native modules before running")

	calcCmd := &cobra.Command{
		Use:   "calc [flowsheet]",
		Short: "run a single calculation pass",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSingle,
	}
	calcCmd.Flags().StringVar(&calcMode, "mode", "auto", "calculation mode: auto or ordered")
	calcCmd.Flags().IntVar(&timeoutSec, "timeout", 0, "calculation timeout in seconds (overrides config)")
	calcCmd.Flags().BoolVar(&live, "live", false, "show live per-object progress")
	calcCmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "fail instead of overwriting existing outputs")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario]",
		Short: "run a scripted scenario of calculation passes",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "fail instead of overwriting existing outputs")

	modulesCmd := &cobra.Command{
		Use:   "modules",
		Short: "resolve native simulator modules and print the report",
		RunE:  showModules,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list archived runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot per-object calculation time for a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export an archived run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "write a default flowrun.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save("flowrun.yaml", config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Println("wrote flowrun.yaml")
			return nil
		},
	})

	rootCmd.AddCommand(runCmd, calcCmd, batchCmd, modulesCmd, runsCmd, plotCmd, exportCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		runner.DumpError(err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Flowsheet = args[0]
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if timeoutSec > 0 {
		cfg.TimeoutSeconds = timeoutSec
	}
	if keepExisting {
		cfg.KeepExisting = true
	}
	if preflight {
		cfg.Preflight = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func runPreflight(cfg *config.Config, log *slog.Logger) error {
	modules := make([]loader.Module, 0, len(cfg.Modules))
	for _, m := range cfg.Modules {
		modules = append(modules, loader.Module{Name: m.Name, Critical: m.Critical})
	}
	report := loader.Resolve(cfg.SimulatorHome, cfg.SearchPaths, modules, log)
	return report.Err()
}

func runBoth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.Flowsheet == "" {
		return fmt.Errorf("no flowsheet given (argument or config)")
	}
	log := newLogger(cfg, os.Stderr)

	if cfg.Preflight {
		if err := runPreflight(cfg, log); err != nil {
			return err
		}
	}

	r := runner.New(cfg, log)
	results, err := execute(r, cfg.Flowsheet, "")
	for _, res := range results {
		runner.Report(os.Stdout, res)
	}
	if err != nil {
		return err
	}
	fmt.Print(runner.Summary(results))
	return nil
}

func runSingle(cmd *cobra.Command, args []string) error {
	var mode runner.Mode
	switch calcMode {
	case "auto":
		mode = runner.ModeAuto
	case "ordered":
		mode = runner.ModeOrdered
	default:
		return fmt.Errorf("unknown mode: %s (want auto or ordered)", calcMode)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.Flowsheet == "" {
		return fmt.Errorf("no flowsheet given (argument or config)")
	}
	log := newLogger(cfg, os.Stderr)

	r := runner.New(cfg, log)
	results, err := execute(r, cfg.Flowsheet, mode)
	for _, res := range results {
		runner.Report(os.Stdout, res)
	}
	return err
}

// execute runs the requested passes, optionally under the live TUI. An
// empty mode means both passes.
func execute(r *runner.Runner, path string, mode runner.Mode) ([]*runner.Result, error) {
	ctx := context.Background()

	runAll := func() ([]*runner.Result, error) {
		if mode == "" {
			return r.Run(ctx, path)
		}
		res, err := r.RunPass(ctx, path, mode)
		if res == nil {
			return nil, err
		}
		return []*runner.Result{res}, err
	}

	if !live {
		return runAll()
	}

	p := tea.NewProgram(tui.NewModel("flowrun  " + path))
	r.AddObserver(tui.NewObserver(p))
	return runLive(p, runAll)
}

// runLive runs the passes in the background while the bubbletea program
// holds the terminal. The view may quit early (q), so after Run returns we
// still wait for the passes to finish before touching their results: an
// aborted view detaches the display, never the calculation or its saves.
func runLive(p *tea.Program, run func() ([]*runner.Result, error)) ([]*runner.Result, error) {
	var (
		results []*runner.Result
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		results, runErr = run()
		p.Send(tui.RunDoneMsg{})
	}()

	_, err := p.Run()
	<-done
	if err != nil {
		return results, err
	}
	return results, runErr
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log := newLogger(cfg, os.Stderr)

	scenario, err := runner.LoadScenario(args[0])
	if err != nil {
		return err
	}
	if scenario.Name != "" {
		fmt.Printf("scenario: %s\n", scenario.Name)
	}

	r := runner.New(cfg, log)
	results, err := r.RunScenario(context.Background(), scenario)
	for _, res := range results {
		runner.Report(os.Stdout, res)
	}
	if err != nil {
		return err
	}
	fmt.Print(runner.Summary(results))
	return nil
}

func showModules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log := newLogger(cfg, io.Discard)

	modules := make([]loader.Module, 0, len(cfg.Modules))
	for _, m := range cfg.Modules {
		modules = append(modules, loader.Module{Name: m.Name, Critical: m.Critical})
	}
	report := loader.Resolve(cfg.SimulatorHome, cfg.SearchPaths, modules, log)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tCRITICAL\tSTATUS\tPATH")
	for _, res := range report.Results {
		critical := ""
		if res.Module.Critical {
			critical = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Module.Name, critical, res.Status, res.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return report.Err()
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	st := storage.New(cfg.DataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTIME\tDURATION\tOBJECTS\tFAILURES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%d\n",
			run.ID,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.DurationSeconds,
			run.Objects,
			run.Failures,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	st := storage.New(cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(args[0])
	if err != nil {
		return err
	}
	if len(series) == 0 {
		fmt.Println("no timing data for run", args[0])
		return nil
	}

	data := make([]float64, len(series))
	for i, entry := range series {
		data[i] = entry.ElapsedMs
	}

	caption := fmt.Sprintf("per-object calculation time, ms (%s, %s)",
		meta.Mode, meta.Timestamp.Format(time.RFC3339))
	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)

	slowest := 0
	for i, entry := range series {
		if entry.ElapsedMs > series[slowest].ElapsedMs {
			slowest = i
		}
	}
	fmt.Printf("\nslowest object: %s (%.3fms)\n", series[slowest].Object, series[slowest].ElapsedMs)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	return st.ExportJSON(os.Stdout, args[0])
}
