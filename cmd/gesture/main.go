// Gesture streams webcam frames to a live multimodal model and serves the
// particle state it drives over a websocket feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/app"
	"github.com/teslashibe/go-gesture/pkg/live"
)

var rootCmd = &cobra.Command{
	Use:          "gesture",
	Short:        "Drive a particle visualization with hand gestures",
	SilenceUsage: true,
	Long: `Gesture captures webcam frames twice a second, streams them to a live
multimodal model and applies the particle updates it sends back.

The resulting state is served at /api/state and pushed to /ws/state.
Sessions start with POST /api/session/connect, or at startup with --auto-connect.`,
	RunE: runServe,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the registered live providers",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range live.Providers() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	},
}

func init() {
	defaults := app.DefaultConfig()

	f := rootCmd.Flags()
	f.String("env-file", ".env", "Environment file to load")
	f.String("provider", string(defaults.Live.Provider), "Live provider: gemini or relay")
	f.String("model", defaults.Live.Model, "Gemini model")
	f.String("relay-url", "", "Relay websocket URL (relay provider)")
	f.Int("camera", defaults.Camera.DeviceID, "Camera device index")
	f.String("listen", defaults.ListenAddr, "State feed listen address")
	f.Bool("auto-connect", false, "Start a session at startup")
	f.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	f.String("log-file", "", "Also write logs to this rotating file")
	f.Bool("debug", false, "Enable verbose debug logging")

	rootCmd.AddCommand(providersCmd)
}

// loadConfig layers defaults, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	f := cmd.Flags()

	envFile, _ := f.GetString("env-file")
	if err := config.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return app.Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := app.DefaultConfig()
	cfg.LoadEnvConfig()

	if f.Changed("provider") {
		p, _ := f.GetString("provider")
		cfg.Live.Provider = live.Provider(p)
	}
	if f.Changed("model") {
		cfg.Live.Model, _ = f.GetString("model")
	}
	if f.Changed("relay-url") {
		cfg.Live.RelayURL, _ = f.GetString("relay-url")
	}
	if f.Changed("camera") {
		cfg.Camera.DeviceID, _ = f.GetInt("camera")
	}
	if f.Changed("listen") {
		cfg.ListenAddr, _ = f.GetString("listen")
	}
	if f.Changed("auto-connect") {
		cfg.AutoConnect, _ = f.GetBool("auto-connect")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetBool("debug")
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	defer log.Close()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Init(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("gesture running", "listen", cfg.ListenAddr, "provider", cfg.Live.Provider)
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
