package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/cantine/internal/students"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var studentsImportCmd = &cobra.Command{
	Use:   "import <students.json>",
	Short: "Import a students.json registry",
	Long: `Upsert every record of a students.json array into the configured registry.

With --reencode, records that reference an image but carry no face encoding are
enrolled again from that image. Relative image paths are resolved against the
directory of the imported file.

Example:
  cantine students import old/students.json --reencode`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentsImport,
}

func init() {
	studentsCmd.AddCommand(studentsImportCmd)
	studentsImportCmd.Flags().Bool("reencode", false, "Compute missing face encodings from the referenced images")
}

func runStudentsImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	reencode := mustGetBool(cmd, "reencode")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%s is not a JSON array: %w", path, err)
	}
	if len(records) == 0 {
		fmt.Println("Nothing to import.")
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx, reencode)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Importing %d record(s) into the %s registry\n", len(records), a.cfg.Registry.Backend)
	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	report, err := a.students.Import(ctx, bytes.NewReader(data), students.ImportOptions{
		Reencode: reencode,
		BaseDir:  filepath.Dir(path),
		OnRecord: func(string, error) { bar.Add(1) },
	})
	fmt.Println()
	if err != nil {
		return err
	}

	for _, msg := range report.Errors {
		fmt.Printf("Skipped: %s\n", msg)
	}
	fmt.Printf("\nDone! Imported %d of %d student(s)", report.Imported, report.Total)
	if reencode {
		fmt.Printf(", %d re-encoded", report.Reencoded)
	}
	fmt.Println()
	return nil
}
