package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var studentsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the registry as students.json",
	Long: `Write the whole registry, face encodings included, as a JSON array.
Without a file argument the export goes to stdout.

Example:
  cantine students export backup/students.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStudentsExport,
}

func init() {
	studentsCmd.AddCommand(studentsExportCmd)
}

func runStudentsExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		defer f.Close()
		w = f
	}

	n, err := a.students.Export(ctx, w)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		fmt.Printf("Exported %d student(s) to %s\n", n, args[0])
	}
	return nil
}
