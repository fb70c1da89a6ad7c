package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/cantine/internal/access"
	"github.com/spf13/cobra"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Run the turnstile loop in the terminal",
	Long: `Open the camera and run face recognition without the web server. Every
status change and debit is printed as it happens. Stops on Ctrl+C or after
--duration.

Example:
  cantine access
  cantine access --duration 30m --policy debit`,
	Args: cobra.NoArgs,
	RunE: runAccess,
}

func init() {
	rootCmd.AddCommand(accessCmd)
	accessCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	accessCmd.Flags().String("policy", "", "Insufficient balance policy: deny or debit (overrides INSUFFICIENT_POLICY)")
}

func runAccess(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if d := mustGetDuration(cmd, "duration"); d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		defer stop()
	}

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if policy := mustGetString(cmd, "policy"); policy != "" {
		if _, err := access.ParsePolicy(policy); err != nil {
			return err
		}
		a.cfg.Access.InsufficientPolicy = policy
	}

	manager, err := a.accessManager()
	if err != nil {
		return err
	}
	sess, err := manager.Start(ctx)
	if err != nil {
		return err
	}
	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	fmt.Printf("Access session %s running on %s (Ctrl+C to stop)\n", sess.ID(), a.cameraSource())
	fmt.Println(sess.Status())

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			printAccessEvent(ev)
		}
	}

	if _, err := manager.Stop(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	snap := sess.Snapshot()
	fmt.Printf("\nStopped after %s: %d frame(s), %d debit(s)\n",
		time.Since(snap.StartedAt).Round(time.Second), snap.Frames, snap.Debits)
	fmt.Println(snap.LastEvent)
	return nil
}

func printAccessEvent(ev access.Event) {
	ts := time.Now().Format("15:04:05")
	switch ev.Type {
	case access.EventDecision:
		if id, ok := ev.Data.(*access.Identity); ok && id != nil {
			fmt.Printf("%s  ** %-20s %-24s %8.2f €  (d=%.3f)\n", ts, ev.Message, id.Name, id.Balance, id.Distance)
			return
		}
		fmt.Printf("%s  ** %s\n", ts, ev.Message)
	case access.EventError:
		fmt.Printf("%s  !! %s\n", ts, ev.Message)
	case access.EventStatus:
		fmt.Printf("%s  %s\n", ts, ev.Message)
	}
}
