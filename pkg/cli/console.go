package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds (5 seconds)
const slowThresholdMs = 5000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// console prints flow progress. Flows finish on different workers, so
// each flow is printed as one block once it ends.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	total int
}

func newConsole(out io.Writer, total int) *console {
	return &console{out: out, total: total}
}

// Hooks returns pool hooks that print to the console.
func (c *console) Hooks() executor.PoolHooks {
	return executor.PoolHooks{
		FlowStarted:  c.flowStarted,
		FlowFinished: c.flowFinished,
	}
}

func (c *console) flowStarted(flowIdx int, worker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "  %s▸%s [%d/%d] started on %s\n",
		color(colorCyan), color(colorReset), flowIdx+1, c.total, worker)
}

func (c *console) flowFinished(res executor.FlowResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), res.Index+1, c.total, color(colorReset),
		color(colorBold), res.Name, color(colorReset), res.Source)
	fmt.Fprintln(c.out, strings.Repeat("─", 60))

	if res.Result != nil {
		for _, s := range res.Result.Steps {
			c.printStep(s)
		}
	}

	durStr := formatDuration(res.Duration.Milliseconds())
	if res.Passed() {
		fmt.Fprintf(c.out, "%s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), res.Name, color(colorGray), durStr, color(colorReset))
		return
	}
	fmt.Fprintf(c.out, "%s✗ %s%s %s%s%s\n",
		color(colorRed), color(colorReset), res.Name, color(colorGray), durStr, color(colorReset))
	if res.Err != nil {
		fmt.Fprintf(c.out, "  %s╰─%s %v\n", color(colorGray), color(colorReset), res.Err)
	}
}

func (c *console) printStep(s executor.StepOutcome) {
	desc := fmt.Sprintf("%s: %s", s.Type, s.Name)
	ms := s.Duration.Milliseconds()
	durStr := formatDuration(ms)

	if s.Status != core.StatusFailed {
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if ms >= slowThresholdMs {
			durColor = color(colorYellow)
			symbol = "⚠"
			symbolColor = color(colorYellow)
		}
		fmt.Fprintf(c.out, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
		return
	}

	fmt.Fprintf(c.out, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), desc, durStr)
	if s.Error != "" {
		fmt.Fprintf(c.out, "      %s╰─%s %s\n", color(colorGray), color(colorReset), s.Error)
	}
	if s.Screenshot != "" {
		fmt.Fprintf(c.out, "      %s╰─%s screenshot: %s\n", color(colorGray), color(colorReset), s.Screenshot)
	}
}

// printSummary prints the per-flow table.
func (c *console) printSummary(result *executor.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalSteps, passedSteps, failedSteps := 0, 0, 0
	for _, fr := range result.Flows {
		if fr.Result == nil {
			continue
		}
		totalSteps += fr.Result.Total
		passedSteps += fr.Result.Passed
		failedSteps += fr.Result.Failed
	}

	fmt.Fprintln(c.out)
	if passedSteps > 0 {
		fmt.Fprintf(c.out, "  %s%d steps passing%s (%s)\n", color(colorGreen), passedSteps, color(colorReset), formatDuration(result.Duration.Milliseconds()))
	}
	if failedSteps > 0 {
		fmt.Fprintf(c.out, "  %s%d steps failing%s\n", color(colorRed), failedSteps, color(colorReset))
	}
	fmt.Fprintln(c.out)

	tableWidth := 85
	fmt.Fprintln(c.out, strings.Repeat("═", tableWidth))
	fmt.Fprintf(c.out, "  %-42s %6s %7s %6s %6s %10s\n", "Flow", "Status", "Steps", "Pass", "Fail", "Duration")
	fmt.Fprintln(c.out, strings.Repeat("─", tableWidth))

	for _, fr := range result.Flows {
		status := "✓ PASS"
		statusColor := color(colorGreen)
		if !fr.Passed() {
			status = "✗ FAIL"
			statusColor = color(colorRed)
		}

		name := fr.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}

		var total, passed, failed int
		if fr.Result != nil {
			total, passed, failed = fr.Result.Total, fr.Result.Passed, fr.Result.Failed
		}
		fmt.Fprintf(c.out, "  %-42s %s%6s%s %7d %6d %6d %10s\n",
			name, statusColor, status, color(colorReset),
			total, passed, failed, formatDuration(fr.Duration.Milliseconds()))
	}

	fmt.Fprintln(c.out, strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.Passed, result.Total)
	statusColor := color(colorGreen)
	if result.Failed > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(c.out, "  %s%-42s%s %s%6s%s %7d %6d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalSteps, passedSteps, failedSteps,
		formatDuration(result.Duration.Milliseconds()))
	fmt.Fprintln(c.out, strings.Repeat("═", tableWidth))
}

// combineHooks calls every hook set in order.
func combineHooks(all ...executor.PoolHooks) executor.PoolHooks {
	return executor.PoolHooks{
		FlowStarted: func(flowIdx int, worker string) {
			for _, h := range all {
				if h.FlowStarted != nil {
					h.FlowStarted(flowIdx, worker)
				}
			}
		},
		StepProgress: func(flowIdx int) executor.ProgressFunc {
			var fns []executor.ProgressFunc
			for _, h := range all {
				if h.StepProgress != nil {
					if fn := h.StepProgress(flowIdx); fn != nil {
						fns = append(fns, fn)
					}
				}
			}
			if len(fns) == 0 {
				return nil
			}
			return func(stepIndex, totalSteps int, name string, status core.StepStatus) {
				for _, fn := range fns {
					fn(stepIndex, totalSteps, name, status)
				}
			}
		},
		FlowFinished: func(res executor.FlowResult) {
			for _, h := range all {
				if h.FlowFinished != nil {
					h.FlowFinished(res)
				}
			}
		},
	}
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
