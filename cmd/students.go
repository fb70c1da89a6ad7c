package cmd

import (
	"fmt"

	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/spf13/cobra"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Student registry commands",
	Long:  "Commands for enrolling students, managing balances and moving the registry between installations.",
}

func init() {
	rootCmd.AddCommand(studentsCmd)
}

func printStudent(s *registry.Student) {
	fmt.Printf("%-14s %-28s %8.2f €  %s\n", s.StudentID, s.DisplayName(), s.Balance, enrollmentLabel(s))
}

func enrollmentLabel(s *registry.Student) string {
	if s.Enrolled() {
		return fmt.Sprintf("enrolled (%d)", len(s.FaceEncoding))
	}
	return "no face"
}
