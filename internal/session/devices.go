package session

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tphakala/voiceforge/internal/playback"
)

// ListDevices prints the playback devices as a table
func ListDevices(out io.Writer) error {
	devices, err := playback.ListDevices()
	if err != nil {
		return err
	}
	return writeDevices(out, devices)
}

func writeDevices(out io.Writer, devices []playback.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "no playback devices found")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEFAULT\tNAME\tID")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, def, d.Name, d.ID)
	}
	return tw.Flush()
}
