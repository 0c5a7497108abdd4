package main

import (
	"errors"
	"fmt"

	"github.com/artpar/amodule/adapters/imageio"
	"github.com/artpar/amodule/app"
	"github.com/artpar/amodule/resources"
	"github.com/spf13/cobra"
)

var errTestsFailed = errors.New("test cases failed")

var testCmd = &cobra.Command{
	Use:   "test [method]",
	Short: "Run the specification's test cases",
	Long: `Run the test cases declared in the specification.

File inputs and expected masks are read from the resources directory
(module.resources_dir). Cases whose files are missing are skipped.

Examples:
  amodule test
  amodule test process`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := app.NewTestRunner(a.Detector, imageio.PNG{}, resources.Path)

	var reports []app.TestReport
	if len(args) == 1 {
		r, err := runner.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		reports = append(reports, r)
	} else {
		reports, err = runner.RunAll(cmd.Context())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, r := range reports {
		fmt.Fprintf(out, "%s\n", r.Method)
		for _, c := range r.Cases {
			switch {
			case c.Skipped:
				fmt.Fprintf(out, "  SKIP case %d: %v\n", c.Index, c.Err)
			case c.Passed:
				fmt.Fprintf(out, "  PASS case %d (%s)\n", c.Index, c.Duration)
			default:
				fmt.Fprintf(out, "  FAIL case %d (%s)\n", c.Index, c.Duration)
				if c.Err != nil {
					fmt.Fprintf(out, "       %v\n", c.Err)
				}
				for _, f := range c.Failures {
					fmt.Fprintf(out, "       %s\n", f)
				}
			}
		}
		fmt.Fprintf(out, "  %d passed, %d failed, %d skipped\n", r.Passed, r.Failed, r.Skipped)
		if !r.OK() {
			failed = true
		}
	}

	if failed {
		return errTestsFailed
	}
	return nil
}
