// Package pipeline orchestrates the heart rate estimation cycle: it owns the
// sample window and the effective sample rate, runs the smoothing,
// band-limiting, and periodicity stages when the window fills, and fans the
// results out to subscribers.
package pipeline

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/ppg"
)

// Config holds the rate-relevant parameters shared by the filter stages and
// the estimator. Values are fixed for the lifetime of a controller.
type Config struct {
	// BufferSize is the number of samples that triggers a processing cycle.
	BufferSize int
	// SmoothingWindow is the moving-average window in samples.
	SmoothingWindow int
	// MinHz and MaxHz describe the intended heart-rate passband.
	MinHz float64
	MaxHz float64
}

// DefaultConfig returns the standard tuning: a 256-sample window smoothed
// over 5 samples with a 0.7–3.5 Hz passband.
func DefaultConfig() Config {
	return Config{
		BufferSize:      256,
		SmoothingWindow: 5,
		MinHz:           0.7,
		MaxHz:           3.5,
	}
}

// CycleResult is published to subscribers once per completed processing
// cycle.
type CycleResult struct {
	// Time is the capture time of the sample that completed the cycle.
	Time time.Time `json:"time"`
	// HeartRateBPM is the estimated rate; 0 means indeterminate, never a
	// physiological reading.
	HeartRateBPM float64 `json:"heart_rate_bpm"`
	// FPS is the effective sample rate used for this cycle.
	FPS float64 `json:"fps"`
	// Waveform is the filtered signal over the full pre-drain window.
	Waveform []float64 `json:"waveform"`
}

// Controller is the two-state (idle/running) pipeline driver. Its Step
// method is invoked once per available producer sample; all processing
// happens synchronously inside that call. The controller's state is guarded
// by a mutex so it can be hosted by any scheduling primitive, but append,
// drain, and read never interleave.
type Controller struct {
	cfg Config

	mu          sync.Mutex
	running     bool
	window      *ppg.Window
	fps         float64
	frameCount  int
	windowStart time.Time
	cycles      uint64
	lastRate    float64
	lastWave    []float64

	subMu       sync.Mutex
	subscribers map[string]chan CycleResult
}

// NewController creates an idle controller with the given tuning. Zero or
// negative fields fall back to DefaultConfig values.
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.BufferSize < 2 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = def.SmoothingWindow
	}
	if cfg.MinHz <= 0 {
		cfg.MinHz = def.MinHz
	}
	if cfg.MaxHz <= cfg.MinHz {
		cfg.MaxHz = def.MaxHz
	}
	return &Controller{
		cfg:         cfg,
		window:      ppg.NewWindow(cfg.BufferSize),
		subscribers: make(map[string]chan CycleResult),
	}
}

// Config returns the tuning the controller was created with.
func (c *Controller) Config() Config {
	return c.cfg
}

// Start transitions the controller to running, clearing the sample window,
// the sample rate tracking, and the last estimate. Starting a running
// controller resets it the same way.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.reset()
}

// Stop transitions the controller to idle and discards all buffered state.
// Samples delivered while idle are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.reset()
}

// reset clears sample and rate state. Callers must hold c.mu.
func (c *Controller) reset() {
	c.window.Reset()
	c.fps = 0
	c.frameCount = 0
	c.windowStart = time.Time{}
	c.lastRate = 0
	c.lastWave = nil
}

// Running reports whether the controller is accepting samples.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Rate returns the most recent heart rate estimate in bpm; 0 when no cycle
// has produced a determinate estimate yet.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRate
}

// FPS returns the current effective sample rate in frames per second.
func (c *Controller) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// Waveform returns a copy of the most recent filtered waveform, or nil if no
// cycle has completed since the last Start.
func (c *Controller) Waveform() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastWave == nil {
		return nil
	}
	out := make([]float64, len(c.lastWave))
	copy(out, c.lastWave)
	return out
}

// Cycles returns the number of completed processing cycles since Start.
func (c *Controller) Cycles() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// Step feeds one producer sample through the pipeline. While running it
// appends the sample, updates the effective sample rate, and, when the
// window reaches its capacity, runs smooth -> band-limit -> estimate over
// the whole window, publishes the result, and drains the window to its most
// recent half. Step does nothing when the controller is idle.
func (c *Controller) Step(s ppg.Sample) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	c.window.Append(s)
	c.measureRate(s.Time)

	if !c.window.Full() {
		c.mu.Unlock()
		return
	}

	values := c.window.Values()
	smoothed := ppg.MovingAverage(values, c.cfg.SmoothingWindow)
	filtered := ppg.Bandlimit(smoothed, c.cfg.MinHz, c.cfg.MaxHz, c.fps)
	rate := ppg.EstimateRate(filtered, c.fps)

	c.lastRate = rate
	c.lastWave = filtered
	c.cycles++

	// Drain exactly once per fill; skipping this would grow the window
	// without bound.
	c.window.DrainKeepingTail(c.cfg.BufferSize / 2)

	result := CycleResult{
		Time:         s.Time,
		HeartRateBPM: rate,
		FPS:          c.fps,
		Waveform:     filtered,
	}
	c.mu.Unlock()

	c.publish(result)
}

// measureRate recomputes the effective sample rate from wall-clock elapsed
// time once at least a second has passed since the measurement window
// opened. Callers must hold c.mu.
func (c *Controller) measureRate(ts time.Time) {
	if c.windowStart.IsZero() {
		c.windowStart = ts
		c.frameCount = 0
		return
	}
	c.frameCount++
	elapsed := ts.Sub(c.windowStart)
	if elapsed >= time.Second {
		c.fps = float64(c.frameCount) / elapsed.Seconds()
		c.frameCount = 0
		c.windowStart = ts
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving cycle results. The returned
// ID identifies the channel when unsubscribing. The channel is buffered by
// one result; publishes to a full channel are dropped rather than blocking
// the pipeline step.
func (c *Controller) Subscribe() (string, chan CycleResult) {
	id := randomID()
	ch := make(chan CycleResult, 1)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (c *Controller) Unsubscribe(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// Close unsubscribes all consumers.
func (c *Controller) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}

func (c *Controller) publish(result CycleResult) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subscribers {
		select {
		case ch <- result:
		default:
			// skip slow consumers so as not to block the step
			monitoring.Logf("pipeline: subscriber %s missed a cycle", id)
		}
	}
}
