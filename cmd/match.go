package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Identify the student in a photo",
	Long: `Detect the first face in an image and look it up in the registry using the
configured strategy and index. The exit status is non-zero when nobody matches.

Example:
  cantine match visitor.jpg --tolerance 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().Float64("tolerance", 0, "Maximum Euclidean distance (defaults to MATCH_TOLERANCE)")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	tolerance := mustGetFloat64(cmd, "tolerance")
	if tolerance <= 0 {
		tolerance = a.cfg.Matcher.Tolerance
	}

	img, err := face.LoadImage(args[0])
	if err != nil {
		return err
	}
	m, region, err := a.students.MatchFrame(ctx, img, tolerance)
	if err != nil {
		return err
	}

	fmt.Printf("Face at %s\n", region)
	if m == nil {
		return fmt.Errorf("no student within tolerance %.3f", tolerance)
	}
	fmt.Printf("Matched (distance %.4f, strategy %s):\n", m.Distance, a.matcher.Strategy())
	printStudent(&m.Student)
	return nil
}
