package service

import (
	"sync"
	"time"
)

// RateLimiter limita operaciones por clave (ej. "verify:user@x.com") y
// devuelve cuanto falta para poder reintentar cuando niega.
type RateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria de ventana deslizante.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		// La entrada mas vieja es la proxima en salir de la ventana.
		return false, kept[0].Add(l.window).Sub(now)
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true, 0
}
