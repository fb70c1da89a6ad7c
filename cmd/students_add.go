package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/cantine/internal/students"
	"github.com/spf13/cobra"
)

var studentsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enroll a student from a photo or the camera",
	Long: `Enroll a student. The face descriptor is computed from --photo, or from a
camera snapshot taken after the warm-up delay when --capture is set.
Re-enrolling an existing student ID replaces the record.

Example:
  cantine students add --id E042 --first-name Léa --last-name Roux --balance 20 --photo lea.jpg
  cantine students add --first-name Noé --last-name Blanc --capture`,
	Args: cobra.NoArgs,
	RunE: runStudentsAdd,
}

func init() {
	studentsCmd.AddCommand(studentsAddCmd)
	studentsAddCmd.Flags().String("id", "", "Student ID (generated when empty)")
	studentsAddCmd.Flags().String("first-name", "", "First name")
	studentsAddCmd.Flags().String("last-name", "", "Last name")
	studentsAddCmd.Flags().Float64("balance", 0, "Initial balance in euros")
	studentsAddCmd.Flags().String("photo", "", "Portrait to enroll from")
	studentsAddCmd.Flags().Bool("capture", false, "Take the portrait with the camera")
}

func runStudentsAdd(cmd *cobra.Command, args []string) error {
	photo := mustGetString(cmd, "photo")
	capture := mustGetBool(cmd, "capture")
	if (photo == "") == !capture {
		return errors.New("exactly one of --photo or --capture is required")
	}

	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := students.Registration{
		StudentID: mustGetString(cmd, "id"),
		FirstName: mustGetString(cmd, "first-name"),
		LastName:  mustGetString(cmd, "last-name"),
		Balance:   mustGetFloat64(cmd, "balance"),
	}

	if photo != "" {
		st, err := a.students.Register(ctx, reg, photo)
		if err != nil {
			return fmt.Errorf("enrolling from %s: %w", photo, err)
		}
		fmt.Println("Student enrolled:")
		printStudent(st)
		return nil
	}

	fmt.Printf("Capturing from %s, look at the camera...\n", a.cameraSource())
	res := <-a.captureFunc()(ctx)
	if res.Err != nil {
		return res.Err
	}
	if res.Fallback {
		fmt.Println("Warning: camera unavailable, using the fallback image")
	}
	st, err := a.students.RegisterFromFrame(ctx, reg, res.Frame)
	if err != nil {
		return fmt.Errorf("enrolling from camera: %w", err)
	}
	fmt.Println("Student enrolled:")
	printStudent(st)
	return nil
}
