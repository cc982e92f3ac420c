package devices

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/voiceforge/internal/session"
)

// Command creates the device listing command
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio playback devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.ListDevices(cmd.OutOrStdout())
		},
	}
}
