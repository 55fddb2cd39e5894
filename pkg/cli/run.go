package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/report"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run UI flows",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Run one or more flow files on the configured driver.

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  uiflow run login.yaml
  uiflow run flows/ --var USER=test --var PASS=secret
  uiflow run flows/ --parallel 3 --allure
  uiflow run flows/ --output ./my-reports --flatten`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "var",
			Aliases: []string{"e"},
			Usage:   "Global variables (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run flows on N workers",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write allure-results into the output directory",
		},
	},
	Action: runFlowsAction,
}

// RunConfig holds the resolved options of one run.
type RunConfig struct {
	FlowPaths  []string
	ConfigPath string
	Vars       map[string]string
	OutputDir  string
	LogFile    string
	Parallel   int
	Allure     bool
}

func runFlowsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	cfg := &RunConfig{
		FlowPaths:  c.Args().Slice(),
		ConfigPath: c.String("config"),
		Vars:       parseVars(c.StringSlice("var")),
		OutputDir:  outputDir,
		LogFile:    c.String("log-file"),
		Parallel:   c.Int("parallel"),
		Allure:     c.Bool("allure"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeRun(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	if !result.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// executeRun validates the flows, runs them on a worker pool and writes
// the report. A failing flow is not an error; check RunResult.Success.
func executeRun(ctx context.Context, cfg *RunConfig, out io.Writer) (*executor.RunResult, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.OutputDir, "uiflow.log")
	}
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(out, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", cfg.OutputDir)

	ws, err := openWorkspace(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	defer ws.Close()
	logger.Info("Driver: %s", ws.cfg.Driver.Type)

	docs, err := validateFlows(ctx, ws, cfg.FlowPaths, out)
	if err != nil {
		logger.Error("Flow validation failed: %v", err)
		return nil, err
	}
	applyVars(docs, cfg.Vars)
	logger.Info("Validated %d flow(s)", len(docs))

	workers, err := ws.workers(cfg.Parallel, filepath.Join(cfg.OutputDir, "assets"))
	if err != nil {
		return nil, err
	}

	index := report.BuildSkeleton(docs, report.BuilderConfig{
		Driver: report.DriverInfo{
			Kind:      ws.cfg.Driver.Type,
			ServerURL: strings.Join(ws.cfg.Driver.AgentURLs(), ","),
			Workers:   len(workers),
		},
		RunnerName:    "uiflow",
		RunnerVersion: Version,
	})
	writer, err := report.NewIndexWriter(cfg.OutputDir, index)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	con := newConsole(out, len(docs))
	pool := executor.NewPool(workers, combineHooks(writer.Hooks(), con.Hooks()))

	logger.Info("Starting flow execution on %d worker(s)", len(workers))
	writer.Start()
	result, err := pool.Run(ctx, docs)
	writer.End()
	if err != nil {
		logger.Error("Flow execution failed: %v", err)
		return nil, err
	}
	logger.Info("Flow execution completed: %d passed, %d failed", result.Passed, result.Failed)

	con.printSummary(result)

	if cfg.Allure {
		if err := report.GenerateAllure(cfg.OutputDir); err != nil {
			logger.Warn("Failed to generate Allure results: %v", err)
			fmt.Fprintf(out, "Warning: failed to generate Allure results: %v\n", err)
		} else {
			fmt.Fprintf(out, "  Allure results: %s\n", filepath.Join(cfg.OutputDir, report.AllureDir))
		}
	}
	fmt.Fprintf(out, "  Report: %s\n", filepath.Join(cfg.OutputDir, report.IndexFile))

	return result, nil
}

// validateFlows parses every flow and fails when any of them is invalid.
// Warnings are printed and logged.
func validateFlows(ctx context.Context, ws *workspace, paths []string, out io.Writer) ([]*flow.Document, error) {
	v, err := ws.validator(ctx)
	if err != nil {
		return nil, err
	}
	res := v.Validate(paths...)
	for _, w := range res.Warnings {
		logger.Warn("%v", w)
		fmt.Fprintf(out, "  %s!%s %v\n", color(colorYellow), color(colorReset), w)
	}
	if !res.IsValid() {
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  %s✗%s %v\n", color(colorRed), color(colorReset), e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(res.Errors))
	}
	if len(res.Documents) == 0 {
		return nil, fmt.Errorf("no flow files found")
	}
	return res.Documents, nil
}

// applyVars makes command-line variables win over the documents' own. A
// variable the document declares keeps its scope and takes the new value;
// the rest are appended in the global scope.
func applyVars(docs []*flow.Document, values map[string]string) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, doc := range docs {
		declared := make(map[string]bool, len(doc.Variables))
		for i := range doc.Variables {
			if v, ok := values[doc.Variables[i].Name]; ok {
				doc.Variables[i].Value = v
				declared[doc.Variables[i].Name] = true
			}
		}
		for _, k := range keys {
			if !declared[k] {
				doc.Variables = append(doc.Variables, flow.Variable{Name: k, Scope: string(vars.Global), Value: values[k]})
			}
		}
	}
}

func parseVars(pairs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range pairs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
