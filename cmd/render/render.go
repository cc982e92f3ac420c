package render

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/session"
)

// Command creates the offline render command
func Command(settings *conf.Settings) *cobra.Command {
	opts := session.RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Process a file offline and write a WAV",
		Long: "Decode a file, apply slider settings given with --set, resynthesize and write\n" +
			"the result without opening an audio device.",
		Example: "  voiceforge render take.wav --set pitch_shift=5 --set reverb_mix=0.2 -o out.wav",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			path, err := session.Render(cmd.Context(), settings, opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "Slider assignment <slider>=<value>, repeatable")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output WAV path (default <input>_processed.wav)")
	cmd.Flags().BoolVar(&opts.Bypass, "bypass", false, "Skip the vocoder and apply effects only")
	return cmd
}
