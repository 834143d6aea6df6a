package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ErrNoCamera means no capture device is attached.
var ErrNoCamera = errors.New("no camera attached")

type Frame struct {
	Data []byte
	Path string
}

// Command captures stills by running an external grabber (fswebcam,
// libcamera-still, ...) with the output path as last argument.
type Command struct {
	args       []string
	deviceGlob string
	dir        string
	now        func() time.Time
}

func NewCommand(args []string, deviceGlob, dir string) *Command {
	return &Command{args: args, deviceGlob: deviceGlob, dir: dir, now: time.Now}
}

// Available reports whether a capture device node exists.
func (c *Command) Available() bool {
	if c.deviceGlob == "" {
		return true
	}
	matches, err := filepath.Glob(c.deviceGlob)
	return err == nil && len(matches) > 0
}

func (c *Command) Capture(ctx context.Context) (*Frame, error) {
	if len(c.args) == 0 || !c.Available() {
		return nil, ErrNoCamera
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture dir: %w", err)
	}
	path := filepath.Join(c.dir, "aimar-"+c.now().Format("20060102-150405.000")+".jpg")

	args := append(append([]string(nil), c.args[1:]...), path)
	cmd := exec.CommandContext(ctx, c.args[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not installed", ErrNoCamera, c.args[0])
		}
		return nil, fmt.Errorf("capture: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	if len(data) == 0 {
		// grabbers exit 0 with an empty file when the device vanished mid-shot
		return nil, ErrNoCamera
	}

	slog.Info("Captured image", "path", path, "bytes", len(data))
	return &Frame{Data: data, Path: path}, nil
}
