package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), "unit %q should be valid", u)
	}
	for _, u := range []string{"", "BPM", "beats", "khz"} {
		assert.False(t, IsValid(u), "unit %q should be invalid", u)
	}
}

func TestGetValidUnitsString(t *testing.T) {
	assert.Equal(t, "bpm, hz", GetValidUnitsString())
}

func TestConvertRate(t *testing.T) {
	assert.Equal(t, 72.0, ConvertRate(72, BPM))
	assert.Equal(t, 1.2, ConvertRate(72, HZ))
	// unknown units pass through unchanged
	assert.Equal(t, 72.0, ConvertRate(72, "furlongs"))
	// the indeterminate sentinel stays zero in every unit
	assert.Equal(t, 0.0, ConvertRate(0, HZ))
}

func TestPeriodSeconds(t *testing.T) {
	assert.Equal(t, 1.0, PeriodSeconds(60))
	assert.Equal(t, 0.5, PeriodSeconds(120))
	assert.Equal(t, 0.0, PeriodSeconds(0))
}
