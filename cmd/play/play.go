package play

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/session"
)

// Command creates the interactive play command
func Command(settings *conf.Settings) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "play [file]",
		Short: "Open a file for interactive voice processing",
		Long: "Load an audio file, analyze it and play it back while sliders are adjusted from\n" +
			"commands typed on stdin. Type help for the command list.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if printConfig {
				data, err := conf.Dump(settings)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return session.Play(cmd.Context(), settings, path, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective configuration as YAML and exit")
	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the play command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("device", "", `Output device name, ID or substring ("none" disables output)`)
	cmd.Flags().Bool("loop", false, "Loop playback")
	cmd.Flags().Bool("metrics", false, "Enable the Prometheus metrics endpoint")
	cmd.Flags().String("listen", "", "Listen address of the metrics endpoint")

	return conf.BindFlags(viper.GetViper(), cmd.Flags(), map[string]string{
		"audio.device":    "device",
		"playback.loop":   "loop",
		"metrics.enabled": "metrics",
		"metrics.listen":  "listen",
	})
}
