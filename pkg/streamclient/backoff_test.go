package streamclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Sequence(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)

	for n := 1; n <= 8; n++ {
		want := time.Second << (n - 1)
		if want > 30*time.Second {
			want = 30 * time.Second
		}
		assert.Equal(t, want, b.Next(), "attempt %d", n)
	}
}

func TestBackoff_ResetAfterSuccess(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	b.Next()
	b.Next()
	b.Next()

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())

	for range 10 {
		b.Next()
	}
	assert.Equal(t, DefaultMaxDelay, b.Next())
}

func TestBackoff_MaxBelowBase(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}

func TestNew_DefaultBackoffGrows(t *testing.T) {
	c, err := New(Options{URL: "http://x", Credentials: staticCredentials("t", "")})
	require.NoError(t, err)

	var got []time.Duration
	for range 6 {
		got = append(got, c.backoff.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second,
	}, got)
}
