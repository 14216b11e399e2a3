package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return assert.AnError })
	}

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	_ = cb.Execute(func() error { return assert.AnError })
	_ = cb.Execute(func() error { return assert.AnError })
	require.NoError(t, cb.Execute(func() error { return nil }))

	// Two more failures are below the threshold again.
	_ = cb.Execute(func() error { return assert.AnError })
	_ = cb.Execute(func() error { return assert.AnError })
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestExecute_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 4; i++ {
		_ = cb.Execute(func() error { return assert.AnError })
	}
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenFailureTripsAgain(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 4; i++ {
		_ = cb.Execute(func() error { return assert.AnError })
	}

	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(func() error { return assert.AnError })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestReset(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 4; i++ {
		_ = cb.Execute(func() error { return assert.AnError })
	}
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
