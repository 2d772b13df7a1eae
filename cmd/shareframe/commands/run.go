package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bryanchriswhite/ShareFrame/internal/api"
	"github.com/bryanchriswhite/ShareFrame/internal/app"
	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/bryanchriswhite/ShareFrame/internal/compositor"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/output"
	"github.com/bryanchriswhite/ShareFrame/internal/window"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the overlay window",
	Long: `Open the overlay window and start capturing the screen region beneath it.

Toggle between alignment and share mode with the hotkey (default
ctrl+shift+s) or, when the control server is enabled, from the web page.`,
	Example: `  # Open the overlay with the configured backend
  shareframe run

  # Start directly in share mode
  shareframe run --mode share

  # Use the PipeWire portal and serve a preview on port 9090
  shareframe run --backend pipewire --server --port 9090

  # Try it without a display server's capture support
  shareframe run --backend synthetic --log-level debug`,
	RunE: runRun,
}

var (
	runMode     string
	runServer   bool
	runPort     int
	runNoHotkey bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runMode, "mode", "", "initial mode (alignment or share)")
	runCmd.Flags().BoolVar(&runServer, "server", false, "enable the control server")
	runCmd.Flags().IntVar(&runPort, "port", 0, "control server port")
	runCmd.Flags().BoolVar(&runNoHotkey, "no-hotkey", false, "do not grab the toggle hotkey")
}

func runRun(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}

	overrides := map[string]interface{}{}
	if runMode != "" {
		overrides["mode.start"] = runMode
	}
	if runServer {
		overrides["server.enabled"] = true
	}
	if runPort > 0 {
		overrides["server.port"] = runPort
	}
	if runNoHotkey {
		overrides["mode.hotkey"] = ""
	}
	for key, value := range overrides {
		if err := mgr.Override(key, value); err != nil {
			return err
		}
	}

	cfg := mgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("app")

	log.Info().
		Str("config", mgr.GetConfigPath()).
		Str("backend", cfg.Capture.Backend).
		Str("mode", cfg.Mode.Start).
		Msg("ShareFrame starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := capture.New(cfg.Capture)
	if err != nil {
		return err
	}

	overlay, err := window.Open(window.Options{Window: cfg.Window, Hotkey: cfg.Mode.Hotkey})
	if err != nil {
		return err
	}
	defer overlay.Close()

	var (
		a       *app.App
		preview *output.MJPEGOutput
		mirrors []compositor.Surface
	)
	if cfg.Server.Enabled {
		preview = output.NewMJPEGOutput(output.Config{
			MaxWidth: cfg.Server.PreviewMaxWidth,
			Quality:  cfg.Server.JPEGQuality,
			Label:    func() string { return strings.ToUpper(a.Status().Mode) },
		})
		mirrors = append(mirrors, preview)
	}

	a, err = app.New(app.Options{
		Config:  cfg,
		Source:  source,
		Window:  overlay,
		Surface: overlay.Surface(),
		Mirrors: mirrors,
	})
	if err != nil {
		return err
	}

	sideCtx, stopSide := context.WithCancel(ctx)
	var wg conc.WaitGroup
	if cfg.Server.Enabled {
		srv := api.NewServer(a, mgr, preview, cfg.Server.StatusInterval)
		wg.Go(func() { _ = preview.Run(sideCtx) })
		wg.Go(func() {
			// the overlay keeps running without its control server
			if err := srv.Start(sideCtx, cfg.Server.Bind, cfg.Server.Port); err != nil {
				log.Error().Err(err).Msg("Control server failed")
			}
		})
	}

	err = a.Run(ctx)
	stopSide()
	wg.Wait()

	switch {
	case errors.Is(err, compositor.ErrCaptureStopped):
		log.Error().Err(err).Msg("Capture stopped")
		return err
	case err != nil:
		log.Error().Err(err).Msg("Overlay failed")
		return err
	}
	log.Info().Msg("ShareFrame stopped")
	return nil
}
