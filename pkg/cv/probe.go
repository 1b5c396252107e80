package cv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/teslashibe/go-facecam/pkg/capture"
)

// probeDevice checks the device node before OpenCV gets a chance to fail
// with a generic error, so permission and missing-device failures can be
// told apart. Only Linux exposes device nodes; elsewhere it passes.
func probeDevice(device int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	return probePath(fmt.Sprintf("/dev/video%d", device))
}

func probePath(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, capture.ErrPermissionDenied)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, capture.ErrNoDevice)
	default:
		return fmt.Errorf("%s: %w", path, capture.ErrDeviceBusy)
	}
}
