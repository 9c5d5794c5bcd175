package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundFloat64(t *testing.T) {
	assert.Equal(t, 1.23, TwoDecimals(1.2345))
	assert.Equal(t, 1.24, TwoDecimals(1.235001))
	assert.Equal(t, 2.0, RoundFloat64(1.96, 1))
	assert.Equal(t, 10.0, RoundFloat64(10.0, 0))
}

func TestWattsToKWh(t *testing.T) {
	assert.Equal(t, 2.5, WattsToKWh(2500))
	assert.Equal(t, 0.0, WattsToKWh(0))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.5, Clamp(0.1, 0.5, 1.5))
	assert.Equal(t, 1.5, Clamp(3, 0.5, 1.5))
	assert.Equal(t, 1.0, Clamp(1, 0.5, 1.5))
}
