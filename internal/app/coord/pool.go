package coord

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// PoolConfig configures a worker pool.
type PoolConfig struct {
	Workers   int     // Number of worker goroutines
	QueueSize int     // Pending jobs before Submit rejects
	Rate      float64 // Job starts per second, 0 disables limiting
	Burst     int     // Limiter burst
}

// Job is a unit of work. ctx is cancelled when the pool shuts down.
type Job func(ctx context.Context)

// Pool runs jobs on a bounded set of goroutines.
type Pool struct {
	jobs    chan Job
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates and starts a pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:    make(chan Job, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, burst),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues job. It returns false when the pool is shut down or full.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		zlog.Warn().Msgf("worker pool queue full: capacity=%d", cap(p.jobs))
		return false
	}
}

// Shutdown cancels running jobs and stops the workers. Outstanding jobs are not
// waited for beyond their reaction to ctx cancellation.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			if err := p.limiter.Wait(p.ctx); err != nil {
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("panic in worker pool job: %v", r)
		}
	}()
	job(p.ctx)
}
