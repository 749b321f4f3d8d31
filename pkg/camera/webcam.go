package camera

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/live"
)

// Common errors returned by GetFrame.
var (
	ErrClosed     = errors.New("camera: closed")
	ErrEmptyFrame = errors.New("camera: empty frame")
)

// Webcam reads frames from an OpenCV video capture device.
type Webcam struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	frame   gocv.Mat
	scaled  gocv.Mat
	closed  bool
}

// Open opens the device. Failures are acquisition errors: the session
// should not start without a camera.
func Open(cfg Config) (*Webcam, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, live.Errorf(live.KindAcquisition, "camera", "invalid config: %s", strings.Join(errs, "; "))
	}

	vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, &live.Error{Kind: live.KindAcquisition, Op: "camera", Reason: "camera unavailable", Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, live.Errorf(live.KindAcquisition, "camera", "camera %d unavailable", cfg.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(capture.FrameWidth))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(capture.FrameHeight))

	return &Webcam{
		vc:      vc,
		frame:   gocv.NewMat(),
		scaled:  gocv.NewMat(),
	}, nil
}

// GetFrame reads the latest frame at capture.FrameWidth x capture.FrameHeight.
func (w *Webcam) GetFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if ok := w.vc.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, ErrEmptyFrame
	}

	if w.frame.Cols() == capture.FrameWidth && w.frame.Rows() == capture.FrameHeight {
		return w.frame.ToImage()
	}
	gocv.Resize(w.frame, &w.scaled, image.Pt(capture.FrameWidth, capture.FrameHeight), 0, 0, gocv.InterpolationArea)
	return w.scaled.ToImage()
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.frame.Close()
	w.scaled.Close()
	return w.vc.Close()
}
