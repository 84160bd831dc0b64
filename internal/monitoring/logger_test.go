package monitoring

import (
	"fmt"
	"log"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(log.Printf)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("sampled %d frames", 42)
	if got != "sampled 42 frames" {
		t.Errorf("captured %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	defer SetLogger(log.Printf)

	SetLogger(nil)
	// must not panic
	Logf("dropped cycle")
}
