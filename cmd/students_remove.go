package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var studentsRemoveCmd = &cobra.Command{
	Use:     "remove <student-id> [student-id...]",
	Aliases: []string{"rm"},
	Short:   "Remove students and their stored photos",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runStudentsRemove,
}

func init() {
	studentsCmd.AddCommand(studentsRemoveCmd)
}

func runStudentsRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, id := range args {
		if err := a.students.Remove(ctx, id); err != nil {
			fmt.Printf("Failed: %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("Removed %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d student(s) could not be removed", failed, len(args))
	}
	return nil
}
