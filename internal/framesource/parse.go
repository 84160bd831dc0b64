package framesource

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSampleLine parses one line of sensor output. Lines are either a bare
// intensity value or "uptime,value"; the device uptime field is discarded
// because samples are stamped with the host clock on arrival. Non-finite
// values are rejected so they never reach the pipeline.
func ParseSampleLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("empty sample line")
	}

	raw := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		segments := strings.Split(line, ",")
		if len(segments) != 2 {
			return 0, fmt.Errorf("invalid sample line %q: expected 2 segments", line)
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(segments[0]), 64); err != nil {
			return 0, fmt.Errorf("failed to parse uptime in %q: %w", line, err)
		}
		raw = strings.TrimSpace(segments[1])
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sample value in %q: %w", line, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("non-finite sample value in %q", line)
	}
	return value, nil
}
