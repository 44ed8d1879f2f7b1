package gemini

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/knowfox/gemwire/internal/log"
)

// SlowDown limits each remote host to Burst requests per Window. Hosts
// over budget are told how long to wait with status 44.
type SlowDown struct {
	window time.Duration
	burst  int
	cache  *gocache.Cache
}

// NewSlowDown returns a limiter allowing burst requests per window.
func NewSlowDown(window time.Duration, burst int) *SlowDown {
	if window <= 0 {
		window = time.Second
	}
	if burst < 1 {
		burst = 1
	}
	return &SlowDown{
		window: window,
		burst:  burst,
		cache:  gocache.New(window, 2*window),
	}
}

// Allow counts a request from host. When the host is over budget it
// returns false and the time until its window resets.
func (l *SlowDown) Allow(host string) (bool, time.Duration) {
	if err := l.cache.Add(host, 1, l.window); err == nil {
		return true, 0
	}
	n, err := l.cache.IncrementInt(host, 1)
	if err != nil {
		// the entry expired between Add and IncrementInt
		l.cache.Set(host, 1, l.window)
		return true, 0
	}
	if n <= l.burst {
		return true, 0
	}
	wait := l.window
	if _, exp, ok := l.cache.GetWithExpiration(host); ok && !exp.IsZero() {
		wait = time.Until(exp)
	}
	if wait < time.Second {
		wait = time.Second
	}
	log.Debug(log.CatServer, "slow down", "host", host, "count", n, "wait", wait)
	return false, wait
}
