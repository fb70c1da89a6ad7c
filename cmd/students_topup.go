package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var studentsTopUpCmd = &cobra.Command{
	Use:   "topup <student-id> <amount>",
	Short: "Add money to a student's balance",
	Long: `Credit a student's balance.

Example:
  cantine students topup E042 15`,
	Args: cobra.ExactArgs(2),
	RunE: runStudentsTopUp,
}

func init() {
	studentsCmd.AddCommand(studentsTopUpCmd)
}

func runStudentsTopUp(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("invalid amount %q", args[1])
	}

	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.students.TopUp(ctx, args[0], amount)
	if err != nil {
		return err
	}
	fmt.Printf("Credited %.2f €\n", amount)
	printStudent(st)
	return nil
}
