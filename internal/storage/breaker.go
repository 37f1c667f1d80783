package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed lets calls through.
	StateClosed CircuitState = iota
	// StateOpen fails calls fast until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single probe call through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("object storage circuit is open")

// Breaker defaults.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
)

// BreakerStore guards an ObjectStore with a circuit breaker so an unreachable
// endpoint costs one fast error instead of a timeout per request. Missing
// objects are answers, not failures. Ping bypasses the breaker so health
// checks always see the real endpoint.
type BreakerStore struct {
	inner       ObjectStore
	maxFailures int
	cooldown    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	probeActive bool
}

var _ ObjectStore = (*BreakerStore)(nil)

// NewBreakerStore wraps inner. Non-positive limits select the defaults.
func NewBreakerStore(inner ObjectStore, maxFailures int, cooldown time.Duration, logger *zap.Logger) *BreakerStore {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerStore{
		inner:       inner,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger.Named("breaker"),
		now:         time.Now,
	}
}

// State returns the current circuit state.
func (b *BreakerStore) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerStore) Put(ctx context.Context, key, path, contentType string) error {
	return b.call(func() error { return b.inner.Put(ctx, key, path, contentType) })
}

func (b *BreakerStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	var (
		rc   io.ReadCloser
		size int64
	)
	err := b.call(func() error {
		var err error
		rc, size, err = b.inner.Get(ctx, key)
		return err
	})
	return rc, size, err
}

func (b *BreakerStore) Remove(ctx context.Context, key string) error {
	return b.call(func() error { return b.inner.Remove(ctx, key) })
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *BreakerStore) call(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err == nil || errors.Is(err, ErrObjectNotFound))
	return err
}

func (b *BreakerStore) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.logger.Info("circuit half-open", zap.Duration("cooldown", b.cooldown))
		fallthrough
	case StateHalfOpen:
		if b.probeActive {
			return ErrCircuitOpen
		}
		b.probeActive = true
	}
	return nil
}

func (b *BreakerStore) release(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	if wasProbe {
		b.probeActive = false
	}

	if ok {
		if wasProbe {
			b.logger.Info("circuit closed")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if wasProbe || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			b.logger.Warn("circuit opened", zap.Int("failures", b.failures), zap.Duration("cooldown", b.cooldown))
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}
