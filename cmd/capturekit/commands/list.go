package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/CaptureKit/internal/display"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [windows|monitors]",
	Short: "List capturable windows or monitors",
	Long: `List the targets CaptureKit can capture.

"windows" (the default) connects to the X11 server and lists top-level
windows in the window manager's order, which is the order --window-title
matches in. "monitors" lists attached monitors by index.`,
	Example: `  # List windows in table format (default)
  capturekit list

  # List monitors as JSON
  capturekit list monitors --format json

  # Show the currently focused window
  capturekit list --current`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"windows", "monitors"},
	RunE:      runList,
}

var (
	listFormat  string
	listCurrent bool
	listAll     bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listCurrent, "current", "c", false, "show current focused window")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include windows that are not visible")
}

func runList(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(); err != nil {
		return err
	}
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}

	what := "windows"
	if len(args) == 1 {
		what = args[0]
	}

	switch what {
	case "monitors":
		return printMonitors(os.Stdout, display.NewManager().List(), listFormat)
	case "windows":
	default:
		return fmt.Errorf("unknown list kind %q (use 'windows' or 'monitors')", what)
	}

	backend, err := window.NewX11Backend()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer backend.Close()

	if listCurrent {
		current, err := backend.GetFocusedWindow()
		if err != nil {
			fmt.Println("No window is currently focused")
			return nil
		}
		return printWindow(os.Stdout, current, listFormat)
	}

	windows, err := backend.ListWindows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if !listAll {
		windows = visibleOnly(windows)
	}
	return printWindows(os.Stdout, windows, listFormat)
}

func visibleOnly(windows []*window.Info) []*window.Info {
	visible := make([]*window.Info, 0, len(windows))
	for _, w := range windows {
		if w.Visible {
			visible = append(visible, w)
		}
	}
	return visible
}

func printJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printWindows(out io.Writer, windows []*window.Info, format string) error {
	if format == "json" {
		return printJSON(out, windows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "HANDLE\tTITLE\tCLASS\tPID\tGEOMETRY\tFOCUSED")
	fmt.Fprintln(w, "------\t-----\t-----\t---\t--------\t-------")

	for _, info := range windows {
		focused := ""
		if info.Focused {
			focused = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%dx%d+%d+%d\t%s\n",
			info.ID, info.Title, info.Class, info.PID,
			info.Geometry.Width, info.Geometry.Height, info.Geometry.X, info.Geometry.Y,
			focused)
	}
	return nil
}

func printWindow(out io.Writer, info *window.Info, format string) error {
	if format == "json" {
		return printJSON(out, info)
	}

	fmt.Fprintf(out, "Handle:   %d (0x%x)\n", info.ID, info.ID)
	fmt.Fprintf(out, "Title:    %s\n", info.Title)
	fmt.Fprintf(out, "Class:    %s\n", info.Class)
	fmt.Fprintf(out, "PID:      %d\n", info.PID)
	fmt.Fprintf(out, "Geometry: %dx%d at (%d, %d)\n",
		info.Geometry.Width, info.Geometry.Height,
		info.Geometry.X, info.Geometry.Y)
	return nil
}

func printMonitors(out io.Writer, monitors []display.Monitor, format string) error {
	if format == "json" {
		return printJSON(out, monitors)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INDEX\tRESOLUTION\tPOSITION\tPRIMARY")
	fmt.Fprintln(w, "-----\t----------\t--------\t-------")

	for _, m := range monitors {
		primary := "No"
		if m.Primary {
			primary = "Yes"
		}
		fmt.Fprintf(w, "%d\t%dx%d\t(%d, %d)\t%s\n", m.Index, m.Width, m.Height, m.X, m.Y, primary)
	}
	return nil
}
