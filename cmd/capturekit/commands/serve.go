package commands

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/CaptureKit/internal/api"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/output"
	"github.com/bryanchriswhite/CaptureKit/internal/overlay"
	"github.com/bryanchriswhite/CaptureKit/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture a target and serve it as an MJPEG stream",
	Long: `Start a capture session and the CaptureKit HTTP server.

The server streams the captured frames as MJPEG at /stream, shows them at /,
and exposes a REST API for the session, windows and monitors. The session
can be stopped with POST /api/session/stop; the server keeps running until
interrupted.`,
	Example: `  # Serve the primary monitor on the default port (8090)
  capturekit serve

  # Serve a window by title on a custom port
  capturekit serve --window-title firefox --port 9090

  # Start with debug logging
  capturekit serve --log-level debug`,
	RunE: runServe,
}

var serveAnnotate bool

func init() {
	rootCmd.AddCommand(serveCmd)
	addTargetFlags(serveCmd)
	serveCmd.Flags().BoolVar(&serveAnnotate, "annotate", false, "draw a caption and border on streamed frames")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	if opts.Target, err = targetFields(cmd, cfg.Target); err != nil {
		return err
	}

	d := openDesktop()
	defer d.Close()

	sess, err := session.New(opts, d.resolver, d.router)
	if err != nil {
		return err
	}

	stream := output.NewMJPEGOutput(output.Config{FPS: cfg.Capture.FPS})
	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	apiOpts := api.Options{Monitors: d.monitors, Session: sess, Stream: stream}
	if d.windows != nil {
		apiOpts.Windows = d.windows
	}
	server := api.NewServer(apiOpts)

	annotations := overlay.NewManager()
	annotations.SetEnabled(serveAnnotate || cfg.Output.Annotate)
	annotations.AddWidget(overlay.NewBorderWidget("border", 2, color.RGBA{R: 255, G: 200, A: 255}))
	annotations.AddWidget(overlay.NewLabelWidget("caption", 8, 8, overlay.CaptionText(sess.Spec().String())))

	sess.OnFrame(func(f *frame.Frame, _ *session.Control) error {
		if err := stream.WriteFrame(annotations.Apply(f)); err != nil {
			return err
		}
		server.PublishFrame(f)
		return nil
	})
	sess.OnClosed(func(cause error) {
		server.PublishClosed(cause)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("target", sess.Spec().String()).
		Str("stream", fmt.Sprintf("http://localhost:%d/stream", cfg.ServerPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("CaptureKit is running, press Ctrl+C to stop")

	err = runServing(ctx, sess, func(ctx context.Context) error {
		return server.Start(ctx, cfg.ServerPort)
	})
	log.Info().Uint64("frames", sess.Stats().Frames).Msg("Shutting down")
	return err
}

// runServing runs serve and the session side by side until ctx is cancelled
// or either of them fails. Cancellation reaches the session in any state.
func runServing(ctx context.Context, sess *session.Session, serve func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(gctx)
	})
	g.Go(func() error {
		if err := sess.Start(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sess.Stop()
		return nil
	})
	return g.Wait()
}
