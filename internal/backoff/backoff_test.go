package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_DoublesFromMin(t *testing.T) {
	p := Policy{Min: time.Second, Max: 60 * time.Second}

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelay_NonDecreasingUpToCap(t *testing.T) {
	p := Policy{Min: time.Second, Max: 60 * time.Second}

	prev := time.Duration(0)
	for k := 0; k < 100; k++ {
		d := p.Delay(k)
		assert.GreaterOrEqual(t, d, prev, "delay must not shrink at retry %d", k)
		assert.LessOrEqual(t, d, p.Max, "delay must not exceed cap at retry %d", k)
		prev = d
	}
	assert.Equal(t, p.Max, prev, "schedule should reach the cap")
}

func TestDelay_LargeRetryDoesNotOverflow(t *testing.T) {
	p := Policy{Min: time.Second, Max: 5 * time.Minute}

	assert.Equal(t, p.Max, p.Delay(1 << 20))
}

func TestDelay_JitterStaysWithinBounds(t *testing.T) {
	p := Policy{Min: time.Second, Max: 60 * time.Second, Jitter: true}

	for i := 0; i < 200; i++ {
		d := p.Delay(2) // base 4s, jitter adds up to 2s
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.Less(t, d, 6*time.Second)
	}
}

func TestDelay_JitterNeverExceedsCap(t *testing.T) {
	p := Policy{Min: time.Second, Max: 8 * time.Second, Jitter: true}

	for i := 0; i < 200; i++ {
		for k := 0; k < 10; k++ {
			assert.LessOrEqual(t, p.Delay(k), p.Max)
		}
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, time.Second, p.Min)
	assert.Equal(t, 60*time.Second, p.Max)
	assert.True(t, p.Jitter)
}
