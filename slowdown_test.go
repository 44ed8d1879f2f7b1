package gemini_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gemini "github.com/knowfox/gemwire"
)

func TestSlowDown_Burst(t *testing.T) {
	l := gemini.NewSlowDown(time.Minute, 3)
	for i := 0; i < 3; i++ {
		ok, wait := l.Allow("10.0.0.1")
		require.True(t, ok, "request %d", i)
		require.Zero(t, wait)
	}

	ok, wait := l.Allow("10.0.0.1")
	require.False(t, ok)
	require.Greater(t, wait, 50*time.Second)
	require.LessOrEqual(t, wait, time.Minute)

	ok, _ = l.Allow("10.0.0.2")
	require.True(t, ok, "hosts are counted separately")
}

func TestSlowDown_WindowResets(t *testing.T) {
	l := gemini.NewSlowDown(50*time.Millisecond, 1)
	ok, _ := l.Allow("h")
	require.True(t, ok)

	ok, wait := l.Allow("h")
	require.False(t, ok)
	require.Equal(t, time.Second, wait, "wait is at least one second")

	require.Eventually(t, func() bool {
		ok, _ := l.Allow("h")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSlowDown_Defaults(t *testing.T) {
	l := gemini.NewSlowDown(0, 0)
	ok, _ := l.Allow("h")
	require.True(t, ok)
	ok, _ = l.Allow("h")
	require.False(t, ok)
}
