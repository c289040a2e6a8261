package camera

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-plantbot/internal/log"
)

var (
	// ErrNoCamera is returned when the capture device cannot be opened.
	ErrNoCamera = errors.New("camera: capture device unavailable")

	// ErrEmptyFrame is returned when a frame has no pixels.
	ErrEmptyFrame = errors.New("camera: empty frame")
)

// GreeneryPercent returns the share of pixels of a BGR image whose HSV
// value lies inside [lower, upper], in percent.
func GreeneryPercent(img gocv.Mat, lower, upper HSV) (float64, error) {
	if img.Empty() {
		return 0, ErrEmptyFrame
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(lower.H, lower.S, lower.V, 0),
		gocv.NewScalar(upper.H, upper.S, upper.V, 0),
		&mask)

	total := img.Rows() * img.Cols()
	return float64(gocv.CountNonZero(mask)) * 100 / float64(total), nil
}

// GreeneryFromJPEG decodes an encoded image and measures its leaf coverage.
func GreeneryFromJPEG(data []byte, lower, upper HSV) (float64, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	return GreeneryPercent(img, lower, upper)
}

// GreeneryFromFile reads an image file and measures its leaf coverage.
func GreeneryFromFile(path string, lower, upper HSV) (float64, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return 0, fmt.Errorf("read %s: %w", path, ErrEmptyFrame)
	}
	return GreeneryPercent(img, lower, upper)
}

// Estimator grabs a frame from a capture device for every estimate.
// The device is opened lazily and reopened after config changes.
type Estimator struct {
	manager *Manager

	mu      sync.Mutex // Protects capture
	capture *gocv.VideoCapture
}

// NewEstimator creates an estimator bound to the manager's config.
func NewEstimator(manager *Manager) *Estimator {
	e := &Estimator{manager: manager}
	manager.OnConfigChange = func(Config) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closeLocked()
		return nil
	}
	return e
}

// EstimateGreeneryPercent captures one frame and measures its leaf coverage.
func (e *Estimator) EstimateGreeneryPercent() (float64, error) {
	cfg := e.manager.GetConfig()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.openLocked(cfg); err != nil {
		return 0, err
	}

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i <= cfg.WarmupFrames; i++ {
		if ok := e.capture.Read(&frame); !ok {
			e.closeLocked()
			return 0, fmt.Errorf("camera: read frame %d from device %d failed", i, cfg.Device)
		}
	}

	pct, err := GreeneryPercent(frame, cfg.Lower, cfg.Upper)
	if err != nil {
		return 0, err
	}
	log.Component("camera").Debug("greenery", "percent", pct, "rows", frame.Rows(), "cols", frame.Cols())
	return pct, nil
}

func (e *Estimator) openLocked(cfg Config) error {
	if e.capture != nil {
		return nil
	}
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", ErrNoCamera, cfg.Device, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	e.capture = capture
	return nil
}

func (e *Estimator) closeLocked() {
	if e.capture != nil {
		e.capture.Close()
		e.capture = nil
	}
}

// Close releases the capture device.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
	return nil
}

// Fixed is a calibration constant used when the robot has no camera.
type Fixed float64

// EstimateGreeneryPercent returns the constant.
func (f Fixed) EstimateGreeneryPercent() (float64, error) {
	return float64(f), nil
}
