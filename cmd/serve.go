package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/kozaktomas/cantine/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk web server",
	Long: `Start the Cantine web server.
The web server serves the kiosk page, the student registry API and the access
session (start/stop, live status events and annotated preview frames).

When run under systemd with Type=notify, readiness and shutdown are reported
through sd_notify.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("start-access", false, "Start the access session as soon as the server is up")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port != 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	manager, err := a.accessManager()
	if err != nil {
		return err
	}

	server := web.NewServer(a.cfg, web.Dependencies{
		Students: a.students,
		Access:   manager,
		Capture:  a.captureFunc(),
		Logger:   a.logger,
	})

	if mustGetBool(cmd, "start-access") {
		if _, err := manager.Start(ctx); err != nil {
			a.logger.Warn("access session not started", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.logger.Warn("sd_notify failed", "error", err)
	} else if sent {
		a.logger.Debug("notified systemd of readiness")
	}

	fmt.Printf("Starting Cantine kiosk on http://%s\n", server.Addr())
	fmt.Printf("Registry: %s, camera: %s, matching: %s/%s\n",
		a.cfg.Registry.Backend, a.cfg.Camera.Driver, a.cfg.Matcher.Strategy, a.cfg.Matcher.Index)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
