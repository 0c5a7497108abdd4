package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/artpar/amodule/core/spec"
	"github.com/artpar/amodule/resources"
	"github.com/spf13/cobra"
)

var specFormat string

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Inspect the module specification",
}

var specShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the specification",
	Long: `Print the specification in use.

Without --config this is the bundled specification.yaml. The json format
prints the parsed specification.`,
	Args: cobra.NoArgs,
	RunE: runSpecShow,
}

var specValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a specification file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSpecValidate,
}

func init() {
	rootCmd.AddCommand(specCmd)
	specCmd.AddCommand(specShowCmd)
	specCmd.AddCommand(specValidateCmd)

	specShowCmd.Flags().StringVarP(&specFormat, "format", "f", "yaml", "output format (yaml, json)")
}

func runSpecShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	switch specFormat {
	case "yaml":
		raw := resources.Raw()
		if p := a.Config.Module.SpecPath; p != "" {
			if raw, err = os.ReadFile(p); err != nil {
				return err
			}
		}
		_, err = out.Write(raw)
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Spec)
	default:
		return fmt.Errorf("unknown format %q (expected yaml or json)", specFormat)
	}
}

func runSpecValidate(cmd *cobra.Command, args []string) error {
	var (
		s   *spec.Specification
		err error
	)
	if len(args) == 1 {
		s, err = spec.ParseFile(args[0])
	} else {
		s, err = resources.Load()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "module:  %s %s\n", s.Module.Name, s.Module.Version)
	fmt.Fprintf(out, "methods: %s\n", strings.Join(s.MethodNames(), ", "))
	fmt.Fprintln(out, "valid")
	return nil
}
