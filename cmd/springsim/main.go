package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/springsim/internal/config"
	"github.com/san-kum/springsim/internal/logger"
	"github.com/san-kum/springsim/internal/metrics"
	"github.com/san-kum/springsim/internal/scenario"
	"github.com/san-kum/springsim/internal/scheduler"
	"github.com/san-kum/springsim/internal/storage"
	"github.com/san-kum/springsim/internal/tui"
)

var (
	dataDir    string
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool

	frames    int
	frameRate float64
	mode      string
	workers   int
	seed      int64
	motion    string
	wind      float64
	push      float64
	preset    string
	size      int
	rigCount  int
	jsonOut   bool
	noSave    bool

	column    string
	exportOut string

	benchWorkers []int
)

// main registers commands and flags and executes the root command. With no
// subcommand it watches the configured scenario.
func main() {
	rootCmd := &cobra.Command{
		Use:          "springsim",
		Short:        "spring bone secondary motion simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Options{Enabled: verbose, Level: logLevel, Format: logFormat})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchScenario(cmd, args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".springsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	runCmd := &cobra.Command{
		Use:   "run [kind]",
		Short: "simulate a scenario and save its trace",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the run as JSON")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the trace")

	benchCmd := &cobra.Command{
		Use:   "bench [kind]",
		Short: "time ticks in both modes across worker caps",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchScenario,
	}
	scenarioFlags(benchCmd)
	benchCmd.Flags().IntSliceVar(&benchWorkers, "workers-list", []int{0, 1, 2, 4}, "worker caps to compare (0 = every CPU)")

	watchCmd := &cobra.Command{
		Use:   "watch [kind]",
		Short: "watch a scenario live",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watchScenario,
	}
	scenarioFlags(watchCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&column, "column", "", "trace column (default: every rig's deflection)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list rig presets, kinds and motions",
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage configuration files",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(runCmd, benchCmd, watchCmd, listCmd, plotCmd, exportCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&frames, "frames", config.DefaultFrames, "frames to simulate")
	cmd.Flags().Float64Var(&frameRate, "fps", config.DefaultFrameRate, "host frame rate")
	cmd.Flags().StringVar(&mode, "mode", "sync", "scheduler mode (sync, pipelined)")
	cmd.Flags().IntVar(&workers, "workers", 0, "kernel worker cap (0 = every CPU)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "wind noise seed")
	cmd.Flags().StringVar(&motion, "motion", "sway", "host motion")
	cmd.Flags().Float64Var(&wind, "wind", config.DefaultWind, "wind strength (0 disables)")
	cmd.Flags().Float64Var(&push, "push", 0, "constant +X push strength (0 disables)")
	cmd.Flags().StringVar(&preset, "preset", "", "rig preset")
	cmd.Flags().IntVar(&size, "size", config.DefaultRigSize, "bones (or skirt strands) per rig")
	cmd.Flags().IntVar(&rigCount, "rigs", 1, "number of rigs when a kind is given")
}

// loadConfig reads the config file, then applies the positional kind and
// every flag the user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := "default"
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	}

	flags := cmd.Flags()
	if flags.Changed("frames") {
		cfg.Run.Frames = frames
	}
	if flags.Changed("fps") {
		cfg.Run.FrameRate = frameRate
	}
	if flags.Changed("mode") {
		cfg.Scheduler.Mode = mode
	}
	if flags.Changed("workers") {
		cfg.Scheduler.MaxWorkers = workers
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = seed
	}
	if flags.Changed("motion") {
		cfg.Run.Motion = motion
	}
	if flags.Changed("wind") {
		cfg.Run.Wind = wind
	}
	if flags.Changed("push") {
		cfg.Run.Push = push
	}
	if !cmd.Root().PersistentFlags().Changed("verbose") && cfg.Log.Enabled {
		if err := logger.Init(cfg.LoggerOptions()); err != nil {
			return nil, "", err
		}
	}

	if len(args) > 0 {
		kind := args[0]
		name = kind
		cfg.Rigs = cfg.Rigs[:0]
		for i := 0; i < max(rigCount, 1); i++ {
			cfg.Rigs = append(cfg.Rigs, config.RigConfig{
				Name:   fmt.Sprintf("%s%d", kind, i),
				Kind:   kind,
				Preset: defaultPreset(kind),
				Size:   size,
			})
		}
	}
	for i := range cfg.Rigs {
		if flags.Changed("preset") {
			cfg.Rigs[i].Preset = preset
		}
		if flags.Changed("size") {
			cfg.Rigs[i].Size = size
		}
	}
	return cfg, name, cfg.Validate()
}

func defaultPreset(kind string) string {
	switch kind {
	case "skirt":
		return "cloth"
	case "tail":
		return "tail"
	}
	return config.DefaultPreset
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	sc, err := scenario.New(name, cfg, scenario.NewRegistry(), logger.L)
	if err != nil {
		return err
	}
	defer sc.Close()
	for _, m := range metrics.Default() {
		sc.AddMetric(m)
	}
	series := metrics.NewSeries()
	sc.AddObserver(series)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !jsonOut {
		fmt.Printf("running %s: %d rigs, %d frames, %s mode...\n", name, len(sc.Rigs), cfg.Run.Frames, sc.Scheduler.Mode())
	}
	result, err := sc.Run(ctx, cfg.Run.Frames)
	if errors.Is(err, context.Canceled) {
		logger.Warn("run interrupted, keeping partial trace", "frames", result.Frames)
	} else if err != nil {
		return err
	}

	meta := storage.RunMetadata{
		Scenario:  name,
		Timestamp: time.Now(),
		Seed:      cfg.Run.Seed,
		FrameRate: cfg.Run.FrameRate,
		Frames:    result.Frames,
		Mode:      result.Stats.Mode.String(),
		Workers:   result.Stats.Workers,
		Rigs:      sc.RigNames(),
		Anomalies: result.Stats.Anomalies,
		Metrics:   result.Metrics,
	}
	trace := &storage.Trace{Columns: series.Columns(), Times: series.Times(), Rows: series.Rows()}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if meta.ID, err = st.Save(meta, trace); err != nil {
			return err
		}
		logger.Info("run saved", "id", meta.ID, "dir", dataDir)
	}

	if jsonOut {
		return storage.ExportJSON(os.Stdout, meta, trace)
	}

	fmt.Printf("completed in %v (%.0f frames/sec)\n", result.Elapsed, float64(result.Frames)/result.Elapsed.Seconds())
	if meta.ID != "" {
		fmt.Printf("run id: %s\n", meta.ID)
	}
	fmt.Printf("bones: %d  colliders: %d  workers: %d  anomalies: %d\n",
		result.Stats.Bones, result.Stats.Colliders, result.Stats.Workers, result.Stats.Anomalies)
	fmt.Println("\nmetrics:")
	for _, m := range metrics.Default() {
		fmt.Printf("  %s: %.6f\n", m.Name(), result.Metrics[m.Name()])
	}
	return nil
}

func benchScenario(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	reg := scenario.NewRegistry()

	fmt.Printf("benchmarking %s: %d rigs, %d frames\n\n", name, len(cfg.Rigs), cfg.Run.Frames)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tWORKERS\tBONES\tFRAMES\tTIME\tFRAMES/SEC\tUS/FRAME")

	for _, m := range []scheduler.Mode{scheduler.Synchronous, scheduler.Pipelined} {
		for _, wk := range benchWorkers {
			cfg.Scheduler.Mode = m.String()
			cfg.Scheduler.MaxWorkers = wk

			sc, err := scenario.New(name, cfg, reg, logger.L)
			if err != nil {
				return err
			}
			result, err := sc.Run(context.Background(), cfg.Run.Frames)
			sc.Close()
			if err != nil {
				return err
			}
			logger.Debug("bench pass done", "mode", m, "workers", wk, "elapsed", result.Elapsed)

			perFrame := result.Elapsed / time.Duration(max(result.Frames, 1))
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%.0f\t%d\n",
				m, result.Stats.Workers, result.Stats.Bones, result.Frames, result.Elapsed.Round(time.Microsecond),
				float64(result.Frames)/result.Elapsed.Seconds(), perFrame.Microseconds())
		}
	}
	return w.Flush()
}

func watchScenario(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	sc, err := scenario.New(name, cfg, scenario.NewRegistry(), logger.L)
	if err != nil {
		return err
	}
	defer sc.Close()

	limit := 0
	if cmd.Flags().Changed("frames") {
		limit = cfg.Run.Frames
	}
	return tui.Run(sc, limit)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tFRAMES\tMODE\tRIGS\tDEFLECTION")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%.2f\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Frames,
			run.Mode,
			len(run.Rigs),
			run.Metrics["deflection"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(trace.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("frames: %d\n\n", len(trace.Rows))

	columns := []string{column}
	if column == "" {
		columns = columns[:0]
		for _, c := range trace.Columns {
			if strings.HasSuffix(c, "/deflection") {
				columns = append(columns, c)
			}
		}
	}

	for _, c := range columns {
		data, err := trace.Column(c)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(c),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}
	if exportOut != "" {
		if err := storage.ExportJSONFile(exportOut, *meta, trace); err != nil {
			return err
		}
		logger.Info("run exported", "id", meta.ID, "file", exportOut)
		return nil
	}
	return storage.ExportJSON(os.Stdout, *meta, trace)
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSTIFFNESS\tDRAG\tRADIUS\tLIMIT\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%.0f\t%.2f\t%.2f\t%.0f°\t%s\n",
			name, p.Bone.Stiffness, p.Bone.Drag, p.Bone.Radius, p.Bone.AngleLimit, p.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	reg := scenario.NewRegistry()
	fmt.Printf("\nkinds: %s\n", strings.Join(reg.ListKinds(), ", "))
	fmt.Printf("motions: %s\n", strings.Join(reg.ListMotions(), ", "))
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := "springsim.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
