package main

import (
	"encoding/json"
	"fmt"

	"github.com/artpar/amodule/adapters/imageio"
	"github.com/artpar/amodule/app"
	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/resources"
	"github.com/spf13/cobra"
)

var (
	processThreshold int
	processOutput    string
	processJSON      bool
)

var processCmd = &cobra.Command{
	Use:   "process [image]",
	Short: "Segment the bright pixels of an image",
	Long: `Run the process method on a PNG image.

The image defaults to image.png in the resources directory. The mask is
written as an 8-bit gray PNG when --output is set.

Examples:
  amodule process photo.png --threshold 100 --output mask.png
  amodule process --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntVarP(&processThreshold, "threshold", "t", 130, "brightness threshold")
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "write the mask to this PNG file")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print the result as JSON")
}

func runProcess(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path := resources.Path("image.png")
	if len(args) == 1 {
		path = args[0]
	}

	codec := imageio.PNG{}
	image, err := codec.ReadFile(path)
	if err != nil {
		return err
	}

	ctx := app.WithSource(cmd.Context(), "cli")
	mask, count, err := a.Detector.Process(ctx, image, processThreshold)
	if err != nil {
		return err
	}

	if processOutput != "" {
		if err := codec.WriteFile(processOutput, mask); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if processJSON {
		return json.NewEncoder(out).Encode(map[string]any{
			"image":          path,
			"threshold":      processThreshold,
			"mask_shape":     mask.Shape(),
			"mask_file":      processOutput,
			"#bright_pixels": count,
		})
	}

	fmt.Fprintf(out, "image:          %s %s\n", path, ndarray.FormatShape(image.Shape()))
	fmt.Fprintf(out, "threshold:      %d\n", processThreshold)
	fmt.Fprintf(out, "#bright_pixels: %d\n", count)
	if processOutput != "" {
		fmt.Fprintf(out, "mask:           %s\n", processOutput)
	}
	return nil
}
