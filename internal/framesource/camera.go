package framesource

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // frame endpoints serve JPEG
	_ "image/png"
	"net/http"
	"time"

	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// CameraSource polls an HTTP frame endpoint (one still image per request) at
// the target frame rate and reduces each frame to a mean-intensity sample
// over a fixed, centered region of interest. Decode or transport failures
// drop the frame and keep polling; the pipeline tolerates missing frames.
type CameraSource struct {
	broadcaster
	client   *http.Client
	frameURL string
	clock    timeutil.Clock
	interval time.Duration
	roiW     int
	roiH     int
}

// NewCameraSource creates a camera poller for the given frame URL. targetFPS
// bounds the polling rate; the effective rate the pipeline measures will be
// lower when the endpoint is slow.
func NewCameraSource(frameURL string, targetFPS float64, roiWidth, roiHeight int, clock timeutil.Clock) *CameraSource {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	interval := time.Duration(float64(time.Second) / targetFPS)
	return &CameraSource{
		broadcaster: newBroadcaster(),
		client:      &http.Client{Timeout: interval * 4},
		frameURL:    frameURL,
		clock:       clock,
		interval:    interval,
		roiW:        roiWidth,
		roiH:        roiHeight,
	}
}

// SendCommand is unsupported: the frame endpoint is read-only.
func (c *CameraSource) SendCommand(string) error {
	return ErrCommandsUnsupported
}

// captureFrame fetches and decodes one frame from the endpoint.
func (c *CameraSource) captureFrame() (image.Image, error) {
	resp, err := c.client.Get(c.frameURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("frame endpoint returned %s", resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Monitor polls frames until the context is cancelled.
func (c *CameraSource) Monitor(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			img, err := c.captureFrame()
			if err != nil {
				monitoring.Logf("camera: dropped frame: %v", err)
				continue
			}
			sample := ppg.Sample{
				Time:  c.clock.Now(),
				Value: MeanIntensity(img, c.roiW, c.roiH),
			}
			if !c.publish(sample) {
				return nil
			}
		}
	}
}

// Close closes all subscriber channels.
func (c *CameraSource) Close() error {
	c.closeAll()
	return nil
}
