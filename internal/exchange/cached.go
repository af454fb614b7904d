package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cachedRate struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

type inFlightCall struct {
	done chan struct{}
	rate decimal.Decimal
	err  error
}

// CachedRateSource wraps a RateSource with in-memory TTL caching keyed by
// "FROM->TO". Concurrent misses on the same pair share one upstream fetch.
// A stale entry is served while a refresh is failing, since a slightly old
// rate beats no conversion at all.
type CachedRateSource struct {
	inner RateSource
	ttl   time.Duration

	mu       sync.RWMutex
	rates    map[string]cachedRate
	inFlight map[string]*inFlightCall
}

func NewCachedRateSource(inner RateSource, ttl time.Duration) *CachedRateSource {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CachedRateSource{
		inner:    inner,
		ttl:      ttl,
		rates:    make(map[string]cachedRate),
		inFlight: make(map[string]*inFlightCall),
	}
}

func (s *CachedRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := from + "->" + to
	now := time.Now()

	s.mu.RLock()
	entry, ok := s.rates[key]
	s.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.rate, nil
	}

	s.mu.Lock()
	// re-check under the write lock in case another goroutine refreshed it
	entry, ok = s.rates[key]
	if ok && now.Before(entry.expiresAt) {
		s.mu.Unlock()
		return entry.rate, nil
	}

	if call, waiting := s.inFlight[key]; waiting {
		s.mu.Unlock()
		return waitForRate(ctx, call)
	}

	call := &inFlightCall{done: make(chan struct{})}
	s.inFlight[key] = call
	s.mu.Unlock()

	// detach the fetch from any single caller's deadline so one short-lived
	// caller cannot fail every waiter
	go s.fetchAndBroadcast(context.WithoutCancel(ctx), key, from, to, call)
	return waitForRate(ctx, call)
}

func (s *CachedRateSource) fetchAndBroadcast(ctx context.Context, key, from, to string, call *inFlightCall) {
	rate, err := s.inner.Rate(ctx, from, to)

	s.mu.Lock()
	if err == nil {
		s.rates[key] = cachedRate{rate: rate, expiresAt: time.Now().Add(s.ttl)}
	} else if stale, ok := s.rates[key]; ok {
		// refresh failed, fall back to the expired entry
		rate = stale.rate
		err = nil
	}
	call.rate = rate
	call.err = err
	delete(s.inFlight, key)
	close(call.done)
	s.mu.Unlock()
}

func waitForRate(ctx context.Context, call *inFlightCall) (decimal.Decimal, error) {
	select {
	case <-ctx.Done():
		return decimal.Decimal{}, ctx.Err()
	case <-call.done:
		return call.rate, call.err
	}
}
