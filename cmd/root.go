// Package cmd assembles the voiceforge command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voiceforge/cmd/devices"
	"github.com/tphakala/voiceforge/cmd/play"
	"github.com/tphakala/voiceforge/cmd/render"
	"github.com/tphakala/voiceforge/cmd/version"
	"github.com/tphakala/voiceforge/internal/buildinfo"
	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/logging"
)

// RootCommand creates and returns the root command. Settings are loaded
// into settings before any subcommand other than version runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		closeLog   func() error
	)

	rootCmd := &cobra.Command{
		Use:          "voiceforge",
		Short:        "VoiceForge voice processing CLI",
		Long:         "Analyze, reshape and resynthesize recorded voice with live playback and A/B comparison.",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)
	subcommands := []*cobra.Command{
		play.Command(settings),
		render.Command(settings),
		devices.Command(),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		var err error
		closeLog, err = initialize(settings, configFile)
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging before any
// subcommand runs. The returned function closes the log file, if any.
func initialize(settings *conf.Settings, configFile string) (func() error, error) {
	loaded, err := conf.Load(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}
	*settings = *loaded

	level, err := logging.ParseLevel(settings.Main.Log.Level)
	if err != nil {
		return nil, err
	}

	var closeLog func() error
	if settings.Main.Log.File != "" {
		w, err := logging.OpenRotatingFile(settings.Main.Log.File, logging.RotationConfig{})
		if err != nil {
			return nil, err
		}
		logging.SetOutput(w)
		closeLog = w.Close
	} else {
		logging.Init()
	}
	logging.SetLevel(level)

	if logger := logging.ForService("cmd"); logger != nil && settings.ConfigFile != "" {
		logger.Debug("configuration loaded", "file", settings.ConfigFile)
	}
	return closeLog, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(configFile, "config", "", "Path to config.yaml (default searches ~/.config/voiceforge and .)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("backend", "", "Vocoder backend: reference or world")

	return conf.BindFlags(viper.GetViper(), flags, map[string]string{
		"main.log.level":     "log-level",
		"processing.backend": "backend",
	})
}
