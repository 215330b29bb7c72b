package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_Growth(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: time.Hour}

	assert.Equal(t, time.Minute, b.Delay(1))
	assert.Equal(t, 4*time.Minute, b.Delay(2))
	assert.Equal(t, 16*time.Minute, b.Delay(3))
	assert.Equal(t, time.Hour, b.Delay(4)) // 64m clamped
	assert.Equal(t, time.Hour, b.Delay(20))
}

func TestDelay_Monotonic(t *testing.T) {
	b := Backoff{Base: 30 * time.Second, Max: 2 * time.Hour}

	prev := time.Duration(0)
	for n := 1; n <= 40; n++ {
		d := b.Delay(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, b.Max)
		prev = d
	}
}

func TestDelay_DefensiveInputs(t *testing.T) {
	b := Backoff{}
	assert.Equal(t, b.Delay(1), b.Delay(0))
	assert.Equal(t, b.Delay(1), b.Delay(-3))
	assert.Positive(t, b.Delay(1))
}

// A nil rng must draw from a shared source: back-to-back calls (as made
// by deliveries retrying in the same instant) may not all collapse onto
// one value.
func TestJitteredDelay_NilSourceDesynchronizes(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: time.Hour}
	base := b.Delay(3)

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 64; i++ {
		d := b.JitteredDelay(3, nil)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.75))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.25))
		seen[d] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestJitteredDelay_Bounds(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute}
	rng := rand.New(rand.NewSource(1))

	for n := 1; n <= 6; n++ {
		base := b.Delay(n)
		for i := 0; i < 100; i++ {
			d := b.JitteredDelay(n, rng)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.75))
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.25))
		}
	}
}
