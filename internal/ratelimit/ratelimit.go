package ratelimit

import (
	"sync"
	"time"
)

const SweepInterval = 5 * time.Minute

// Login throttling policy: both windows apply independently, either can block.
const (
	LoginIPLimit    = 5
	LoginEmailLimit = 3
	LoginWindow     = 15 * time.Minute
)

type Options struct {
	Limit      int
	Window     time.Duration
	Identifier string
}

type Result struct {
	Success   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

type entry struct {
	count     int
	resetTime time.Time
}

// Limiter is a fixed-window counter held in process memory. Counts are not
// shared across instances, so horizontal scaling weakens the limit.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
}

func NewLimiter() *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *Limiter) Check(opts Options) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[opts.Identifier]
	if !ok || e.resetTime.Before(now) {
		e = &entry{count: 0, resetTime: now.Add(opts.Window)}
		l.entries[opts.Identifier] = e
	}
	e.count++

	remaining := opts.Limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Success:   e.count <= opts.Limit,
		Limit:     opts.Limit,
		Remaining: remaining,
		Reset:     e.resetTime,
	}
}

func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.resetTime.Before(now) {
			delete(l.entries, key)
		}
	}
}
