package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureNoDevice(t *testing.T) {
	c := NewCommand([]string{"true"}, filepath.Join(t.TempDir(), "video*"), t.TempDir())

	assert.False(t, c.Available())
	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestCaptureMissingGrabber(t *testing.T) {
	c := NewCommand([]string{"aimar-no-such-grabber"}, "", t.TempDir())

	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestCapture(t *testing.T) {
	devDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(devDir, "video0"), nil, 0o644))
	out := filepath.Join(t.TempDir(), "shots")

	// the path is appended as $1 of the script
	c := NewCommand([]string{"sh", "-c", `printf 'JPEGDATA' > "$1"`, "grab"}, filepath.Join(devDir, "video*"), out)

	frame, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("JPEGDATA"), frame.Data)
	assert.Equal(t, out, filepath.Dir(frame.Path))
	assert.FileExists(t, frame.Path)
}

func TestCaptureEmptyFile(t *testing.T) {
	c := NewCommand([]string{"sh", "-c", `: > "$1"`, "grab"}, "", t.TempDir())

	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestCaptureGrabberFails(t *testing.T) {
	c := NewCommand([]string{"sh", "-c", `echo "no frame" >&2; exit 3`, "grab"}, "", t.TempDir())

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCamera)
	assert.Contains(t, err.Error(), "no frame")
}
