package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	Long: `List the registry in order. --query filters on ID and names, ignoring case and accents.

Example:
  cantine students list
  cantine students list --query eloise`,
	Args: cobra.NoArgs,
	RunE: runStudentsList,
}

func init() {
	studentsCmd.AddCommand(studentsListCmd)
	studentsListCmd.Flags().StringP("query", "q", "", "Search term")
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.students.List(ctx, mustGetString(cmd, "query"))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No students found.")
		return nil
	}

	var total float64
	for i := range list {
		printStudent(&list[i])
		total += list[i].Balance
	}
	fmt.Printf("\n%d student(s), total balance %.2f €\n", len(list), total)
	return nil
}
