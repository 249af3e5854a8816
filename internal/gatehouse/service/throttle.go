package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldownThreshold is the failed-attempt count at which a cooldown first
// applies.
const cooldownThreshold = 5

// CooldownFor computes the cooldown deadline after failedAttempts cumulative
// failures. Below the threshold there is no cooldown; from the threshold on,
// the cooldown grows quadratically: 1s, 4s, 9s, 16s, 25s for attempts 5..9.
func CooldownFor(failedAttempts uint, now time.Time) *time.Time {
	if failedAttempts < cooldownThreshold {
		return nil
	}
	n := failedAttempts - (cooldownThreshold - 1)
	deadline := now.Add(time.Duration(n*n) * time.Second)
	return &deadline
}

// Throttle bounds login attempts. The stored cooldown deadline is always
// computed and persisted; whether it actually gates logins is configurable,
// because the system historically recorded the deadline without checking it.
// When Enforce is on, a keyed token-bucket limiter additionally bounds
// attempts per ip:username pair.
type Throttle struct {
	// Enforce turns the recorded cooldown into a hard login gate.
	Enforce bool

	// AttemptsPerMinute and Burst shape the keyed limiter. Zero values
	// fall back to defaults.
	AttemptsPerMinute int
	Burst             int

	limiters    sync.Map // map[string]*rate.Limiter
	mu          sync.Mutex
	lastCleanup time.Time
}

const (
	defaultAttemptsPerMinute = 5
	defaultBurst             = 5
)

// Allow reports whether another attempt for this ip:username pair fits the
// rate limit. Always true when enforcement is off.
func (t *Throttle) Allow(ip, username string) bool {
	if !t.Enforce {
		return true
	}
	return t.limiter(ip + ":" + username).Allow()
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	if l, ok := t.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}

	perMinute := t.AttemptsPerMinute
	if perMinute <= 0 {
		perMinute = defaultAttemptsPerMinute
	}
	burst := t.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	l := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	actual, _ := t.limiters.LoadOrStore(key, l)

	t.maybeCleanup(burst)

	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters so ephemeral keys don't accumulate. A
// limiter with a full bucket has not been used recently.
func (t *Throttle) maybeCleanup(burst int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastCleanup) < 5*time.Minute {
		return
	}
	t.lastCleanup = time.Now()

	t.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(burst) {
			t.limiters.Delete(key)
		}
		return true
	})
}
