package commands

import (
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/spf13/cobra"
)

const (
	flagWindowHandle = "window-handle"
	flagMonitor      = "monitor"
	flagWindowTitle  = "window-title"
)

// addTargetFlags registers the three mutually exclusive target flags
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().Int64(flagWindowHandle, 0, "capture the window with this X11 id")
	cmd.Flags().Int(flagMonitor, 0, "capture the monitor with this index (0 = primary)")
	cmd.Flags().String(flagWindowTitle, "", "capture the first visible window whose title contains this text")
}

// targetFields returns the target fields given on the command line, or the
// configured ones when no target flag was used. Only flags the user actually
// set count as supplied, so "--monitor 0" differs from no flag at all.
func targetFields(cmd *cobra.Command, configured target.Fields) (target.Fields, error) {
	flags := cmd.Flags()
	if !flags.Changed(flagWindowHandle) && !flags.Changed(flagMonitor) && !flags.Changed(flagWindowTitle) {
		return configured, nil
	}

	var fields target.Fields
	if flags.Changed(flagWindowHandle) {
		v, err := flags.GetInt64(flagWindowHandle)
		if err != nil {
			return target.Fields{}, err
		}
		fields.WindowHandle = &v
	}
	if flags.Changed(flagMonitor) {
		v, err := flags.GetInt(flagMonitor)
		if err != nil {
			return target.Fields{}, err
		}
		fields.MonitorIndex = &v
	}
	if flags.Changed(flagWindowTitle) {
		v, err := flags.GetString(flagWindowTitle)
		if err != nil {
			return target.Fields{}, err
		}
		fields.WindowTitle = &v
	}
	return fields, nil
}
