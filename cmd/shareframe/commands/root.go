package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "shareframe",
		Short: "ShareFrame - a window that frames the part of the screen you share",
		Long: `ShareFrame opens a resizable overlay window that continuously shows the
screen region underneath it. Point a screen-sharing tool at the window and
move or resize it to pick what viewers see.

Modes:
  • alignment - decorated, always on top, for positioning the frame
  • share     - undecorated, stacked below other windows, for sharing

While the window has focus it shows a gray fill instead of captured
content, so a share never mirrors the frame into itself.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/shareframe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", fmt.Sprintf("capture backend %v", config.Backends))

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("capture.backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	level := viper.GetString("log_level")
	if level == "" {
		level = "info"
	}
	logger.Init(level, false)
}

// Execute runs the root command and exits 1 on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file and applies command-line overrides
// for this process. Overrides are never written back.
func loadConfig() (*config.Manager, error) {
	mgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, key := range []string{"log_level", "capture.backend"} {
		if v := viper.GetString(key); v != "" {
			if err := mgr.Override(key, v); err != nil {
				return nil, err
			}
		}
	}
	return mgr, nil
}
