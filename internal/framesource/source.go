// Package framesource provides producers of intensity samples for the heart
// rate pipeline: a camera frame poller, a serial PPG sensor, and a synthetic
// generator for dev mode and tests. A source emits one timestamped scalar
// per frame and fans it out to any number of subscribers; the pipeline
// controller consumes them one Step per sample.
package framesource

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

// ErrWriteFailed indicates a short write while sending a command to a device.
var ErrWriteFailed = fmt.Errorf("failed to write command to device")

// ErrCommandsUnsupported is returned by sources that have no command channel.
var ErrCommandsUnsupported = fmt.Errorf("source does not accept commands")

// SampleSource is the producer boundary of the pipeline. Implementations
// must deliver finite sample values with monotonically increasing timestamps
// at an approximately fixed frame rate.
type SampleSource interface {
	// Subscribe creates a new channel for receiving samples. The returned
	// ID identifies the channel when unsubscribing.
	Subscribe() (string, chan ppg.Sample)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendCommand forwards a device command to the underlying producer.
	SendCommand(string) error
	// Monitor runs the capture loop until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscriber channels and releases the producer.
	Close() error
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// broadcaster implements the subscriber fan-out shared by all sources.
// Publishes never block: a subscriber that is not keeping up misses samples.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan ppg.Sample
	closing     bool
}

func newBroadcaster() broadcaster {
	return broadcaster{subscribers: make(map[string]chan ppg.Sample)}
}

func (b *broadcaster) Subscribe() (string, chan ppg.Sample) {
	id := randomID()
	ch := make(chan ppg.Sample, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = ch
	return id, ch
}

func (b *broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// publish fans a sample out to all subscribers. It reports false once the
// broadcaster is closing so capture loops can stop.
func (b *broadcaster) publish(s ppg.Sample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- s:
		default:
			// skip full channels so the capture loop never stalls
		}
	}
	return true
}

// closeAll closes every subscriber channel and marks the broadcaster done.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closing = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
