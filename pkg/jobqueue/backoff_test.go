package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelayDoublesUntilCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 8, InitialDelay: 2 * time.Second, MaxDelay: 20 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(4))
	assert.Equal(t, 20*time.Second, p.Delay(5))
	assert.Equal(t, 20*time.Second, p.Delay(50))
}

func TestRetryPolicyDelayClampsBadAttempt(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, p.InitialDelay, p.Delay(0))
	assert.Equal(t, p.InitialDelay, p.Delay(-3))
}

func TestRetryPolicyExhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute}
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}
