package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/CaptureKit/internal/encoder"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
)

// FileOutput saves every frame as an image file named <prefix>_<sequence><ext>
type FileOutput struct {
	dir    string
	prefix string
	format encoder.Format

	mu      sync.Mutex
	running bool
	written []string
}

// NewFileOutput creates an output writing into dir
func NewFileOutput(dir, prefix string, format encoder.Format) *FileOutput {
	if prefix == "" {
		prefix = "capture"
	}
	return &FileOutput{dir: dir, prefix: prefix, format: format}
}

// Start creates the output directory
func (o *FileOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("file output already running")
	}
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	o.running = true
	return nil
}

// Stop marks the output stopped
func (o *FileOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	return nil
}

// Path returns the file name used for a frame sequence number
func (o *FileOutput) Path(seq uint64) string {
	return filepath.Join(o.dir, fmt.Sprintf("%s_%d%s", o.prefix, seq, o.format.Ext()))
}

// WriteFrame encodes the frame to its own file
func (o *FileOutput) WriteFrame(f *frame.Frame) error {
	if !o.IsRunning() {
		return fmt.Errorf("file output not running")
	}

	path := o.Path(f.Sequence())
	if err := f.SaveAsImage(path); err != nil {
		return err
	}

	o.mu.Lock()
	o.written = append(o.written, path)
	o.mu.Unlock()

	logger.WithComponent("output").Debug().
		Str("path", path).
		Uint64("sequence", f.Sequence()).
		Msg("Saved frame")
	return nil
}

// Written returns the paths saved so far
func (o *FileOutput) Written() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.written...)
}

// Name returns the output type name
func (o *FileOutput) Name() string {
	return "Image files (" + string(o.format) + ")"
}

// IsRunning returns true if the output is active
func (o *FileOutput) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
