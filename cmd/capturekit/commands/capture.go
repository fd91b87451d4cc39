package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/CaptureKit/internal/encoder"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/output"
	"github.com/bryanchriswhite/CaptureKit/internal/session"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture frames from a window or monitor into image files",
	Long: `Capture frames from one window or monitor and save each frame as an
image file named <prefix>_<sequence>.<ext>.

Exactly one of --window-handle, --monitor or --window-title may be given.
Without any of them the target from the config file is used, and without
that the primary monitor (index 0).`,
	Example: `  # Save 10 frames of the primary monitor
  capturekit capture --frames 10

  # Capture a window by its X11 id
  capturekit capture --window-handle 0x3a00007 --frames 5

  # Capture the first window whose title contains "notepad" as JPEG
  capturekit capture --window-title notepad --format jpg --out ./shots`,
	RunE: runCapture,
}

var (
	captureFrames int
	captureOut    string
	captureFormat string
	capturePrefix string
)

func init() {
	rootCmd.AddCommand(captureCmd)

	addTargetFlags(captureCmd)
	captureCmd.Flags().IntVarP(&captureFrames, "frames", "n", 0, "stop after this many frames (default from config, 0 = until interrupted)")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "output directory (default from config)")
	captureCmd.Flags().StringVarP(&captureFormat, "format", "f", "", "image format: png, jpg, bmp or tiff (default from config)")
	captureCmd.Flags().StringVar(&capturePrefix, "prefix", "capture", "file name prefix")
}

func runCapture(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("capture")

	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	if opts.Target, err = targetFields(cmd, cfg.Target); err != nil {
		return err
	}

	maxFrames := cfg.Output.MaxFrames
	if cmd.Flags().Changed("frames") {
		maxFrames = captureFrames
	}
	dir := cfg.Output.Dir
	if captureOut != "" {
		dir = captureOut
	}
	format, err := cfg.OutputFormat()
	if err != nil {
		return err
	}
	if captureFormat != "" {
		if format, err = encoder.ParseFormat(captureFormat); err != nil {
			return err
		}
	}

	d := openDesktop()
	defer d.Close()

	sess, err := session.New(opts, d.resolver, d.router)
	if err != nil {
		return err
	}

	files := output.NewFileOutput(dir, capturePrefix, format)
	if err := files.Start(); err != nil {
		return err
	}
	defer files.Stop()

	sess.OnFrame(func(f *frame.Frame, ctl *session.Control) error {
		if err := files.WriteFrame(f); err != nil {
			return err
		}
		fmt.Printf("Saved frame %d (%dx%d) to %s\n", f.Sequence(), f.Width(), f.Height(), files.Path(f.Sequence()))
		if maxFrames > 0 && f.Sequence() >= uint64(maxFrames) {
			ctl.Stop()
		}
		return nil
	})

	var closeCause error
	sess.OnClosed(func(cause error) {
		closeCause = cause
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sess.Stop()
	}()

	log.Info().
		Str("target", sess.Spec().String()).
		Str("dir", dir).
		Str("format", string(format)).
		Int("max_frames", maxFrames).
		Msg("Starting capture")

	if err := sess.Start(ctx); err != nil {
		if interrupted(ctx, err) {
			return nil
		}
		return err
	}

	st := sess.Stats()
	fmt.Printf("Captured %d frame(s) from %s\n", st.Frames, st.Resolved)
	if closeCause != nil && !interrupted(ctx, closeCause) {
		return fmt.Errorf("capture ended: %w", closeCause)
	}
	return nil
}

// interrupted reports whether err is only the signal context being cancelled.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
