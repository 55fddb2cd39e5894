package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check flow files without running them",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Parse every flow and check step types, nested step lists, required
fields and runtime options. When a component source is configured, custom
component types are checked against it.`,
	Action: validateAction,
}

func validateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	if logFile := c.String("log-file"); logFile != "" {
		if err := logger.Init(logFile); err != nil {
			return err
		}
	} else {
		logger.InitConsole(c.Bool("verbose"))
	}
	defer logger.Close()

	ok, err := runValidate(c.Context, c.String("config"), c.Args().Slice(), os.Stdout)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit("", 1)
	}
	return nil
}

// runValidate prints one line per problem and reports whether every flow
// is valid.
func runValidate(ctx context.Context, configPath string, paths []string, out io.Writer) (bool, error) {
	ws, err := openWorkspace(configPath)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	v, err := ws.validator(ctx)
	if err != nil {
		return false, err
	}
	res := v.Validate(paths...)

	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  %s!%s %v\n", color(colorYellow), color(colorReset), w)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s✗%s %v\n", color(colorRed), color(colorReset), e)
	}
	for _, f := range res.Files {
		fmt.Fprintf(out, "  %s✓%s %s\n", color(colorGreen), color(colorReset), f)
	}
	fmt.Fprintf(out, "\n  %d valid, %d error(s), %d warning(s)\n", len(res.Files), len(res.Errors), len(res.Warnings))

	return res.IsValid(), nil
}
