package framesource

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/timeutil"
)

// SyntheticSource generates a pure sine "pulse" at a configurable rate. It
// stands in for a camera or sensor in dev mode and in tests; with amplitude
// zero it produces the constant signal used to exercise the indeterminate
// path end to end.
type SyntheticSource struct {
	broadcaster
	clock timeutil.Clock
	fps   float64

	mu        sync.Mutex
	bpm       float64
	amplitude float64
	offset    float64
	phase     float64
}

// NewSyntheticSource creates a generator emitting at fps frames per second a
// sine of the given rate, amplitude, and baseline offset.
func NewSyntheticSource(clock timeutil.Clock, fps, bpm, amplitude, offset float64) *SyntheticSource {
	if fps <= 0 {
		fps = 30
	}
	return &SyntheticSource{
		broadcaster: newBroadcaster(),
		clock:       clock,
		fps:         fps,
		bpm:         bpm,
		amplitude:   amplitude,
		offset:      offset,
	}
}

// SendCommand adjusts the generator at runtime. Supported commands are
// "bpm=<value>" and "amplitude=<value>".
func (s *SyntheticSource) SendCommand(command string) error {
	key, raw, ok := strings.Cut(strings.TrimSpace(command), "=")
	if !ok {
		return fmt.Errorf("invalid command %q: expected key=value", command)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid command value %q: %w", raw, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "bpm":
		if value <= 0 {
			return fmt.Errorf("bpm must be positive, got %f", value)
		}
		s.bpm = value
	case "amplitude":
		s.amplitude = value
	default:
		return fmt.Errorf("unknown command %q", key)
	}
	return nil
}

// next advances the oscillator one frame and returns the sample value.
func (s *SyntheticSource) next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase += (s.bpm / 60) / s.fps
	if s.phase >= 1 {
		s.phase -= 1
	}
	return s.offset + s.amplitude*math.Sin(2*math.Pi*s.phase)
}

// Monitor emits one sample per tick until the context is cancelled.
func (s *SyntheticSource) Monitor(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / s.fps)
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if !s.publish(ppg.Sample{Time: now, Value: s.next()}) {
				return nil
			}
		}
	}
}

// Close closes all subscriber channels.
func (s *SyntheticSource) Close() error {
	s.closeAll()
	return nil
}
