package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
	maxRecordedErrors = 10
)

var (
	ErrPoolTimeout = errors.New("timeout waiting for available session")
	ErrPoolClosed  = errors.New("pool is closed")
)

// Session is one loaded model instance. It is used by one request at a time.
type Session interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

type SessionFactory func() (Session, error)

type ModelSessionPool struct {
	name           string
	sessions       chan Session
	size           int
	live           int
	factory        SessionFactory
	acquireTimeout time.Duration
	mu             sync.Mutex
	closed         bool
	done           chan struct{}
	metrics        *PoolMetrics
	lastErrors     []error
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	discarded       int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time copy of the pool counters.
type PoolStats struct {
	Name            string   `json:"name"`
	Size            int      `json:"pool_size"`
	Available       int      `json:"available"`
	InUse           int      `json:"sessions_in_use"`
	TotalAcquired   int64    `json:"total_acquired"`
	TotalReleased   int64    `json:"total_released"`
	AcquireFailures int64    `json:"acquire_failures"`
	Discarded       int64    `json:"discarded"`
	AvgWaitMs       float64  `json:"avg_wait_ms"`
	LastErrors      []string `json:"last_errors,omitempty"`
}

func NewModelSessionPool(name string, factory SessionFactory, size int, acquireTimeout time.Duration) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = AcquireTimeout
	}

	pool := &ModelSessionPool{
		name:           name,
		sessions:       make(chan Session, size),
		size:           size,
		factory:        factory,
		acquireTimeout: acquireTimeout,
		done:           make(chan struct{}),
		metrics:        &PoolMetrics{},
	}

	// Initialize sessions
	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize %s session %d: %w", name, i, err)
		}
		pool.live++
		pool.sessions <- session
	}

	go pool.healthCheck(HealthCheckPeriod)

	return pool, nil
}

func (p *ModelSessionPool) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ErrPoolTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.live--
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Discard destroys a session that failed mid-run instead of returning it to
// the pool. A replacement is created in the background.
func (p *ModelSessionPool) Discard(session Session, cause error) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.discarded++
	p.metrics.mu.Unlock()

	session.Destroy()
	p.recordError(cause)

	p.mu.Lock()
	p.live--
	closed := p.closed
	p.mu.Unlock()

	if !closed {
		go p.replenishSessions()
	}
}

// Run borrows a session for one forward pass.
func (p *ModelSessionPool) Run(ctx context.Context, input []float32) ([]float32, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	out, err := session.Run(input)
	if err != nil {
		p.Discard(session, err)
		return nil, err
	}
	p.Release(session)
	return out, nil
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	// Destroy all idle sessions; borrowed ones are destroyed on release
	for session := range p.sessions {
		p.live--
		session.Destroy()
	}
}

func (p *ModelSessionPool) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenishSessions()
		}
	}
}

// replenishSessions tops the pool back up to its configured size.
func (p *ModelSessionPool) replenishSessions() {
	for {
		p.mu.Lock()
		if p.closed || p.live >= p.size {
			p.mu.Unlock()
			return
		}
		p.live++
		p.mu.Unlock()

		session, err := p.factory()

		p.mu.Lock()
		if err != nil {
			p.live--
			p.mu.Unlock()
			p.recordError(err)
			return
		}
		if p.closed {
			p.live--
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *ModelSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > maxRecordedErrors {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *ModelSessionPool) GetMetrics() PoolStats {
	p.metrics.mu.RLock()
	stats := PoolStats{
		Name:            p.name,
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Discarded:       p.metrics.discarded,
	}
	attempts := p.metrics.totalAcquired + p.metrics.acquireFailures
	if attempts > 0 {
		stats.AvgWaitMs = float64(p.metrics.waitTime.Microseconds()) / 1000 / float64(attempts)
	}
	p.metrics.mu.RUnlock()

	p.mu.Lock()
	stats.Available = len(p.sessions)
	for _, err := range p.lastErrors {
		stats.LastErrors = append(stats.LastErrors, err.Error())
	}
	p.mu.Unlock()

	return stats
}
