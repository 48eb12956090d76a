// Package inference implements the process-wide bounded worker pool
// STT/LLM/TTS submissions run through (§5's "Shared-resource policy":
// "a single process-wide pool; each submission carries a priority
// (emergency > scheduled call > chat > background campaign). The pool
// is a priority queue with FIFO within priority."). Sessions submit
// work and await completion asynchronously; the Session Supervisor
// consults Load/Admit to reject new sessions once the pool is
// saturated (§5 Backpressure, §8's high-water-mark boundary case).
//
// Grounded on haasonsaas-nexus's internal/infra.WorkerPool (bounded
// channel + fixed worker goroutines pulling off it, atomic counters
// for stats) — kept HOW, replaced WHAT: a single FIFO channel becomes
// four priority-ordered channels drained in strict priority order, and
// the pool exposes admission control instead of only submit/result.
// Metrics follow haasonsaas-nexus's internal/observability.Metrics
// shape (prometheus.Counter/Gauge built with plain constructors,
// not promauto, so a Pool can be constructed repeatedly in tests
// without colliding with the default registry).
package inference

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Priority orders submissions within the pool, per §5: emergency work
// always drains ahead of scheduled-call work, which drains ahead of
// chat, which drains ahead of background campaign work. Lower value
// is higher priority.
type Priority int

const (
	PriorityEmergency Priority = iota
	PriorityScheduledCall
	PriorityChat
	PriorityBackground

	numPriorities = int(PriorityBackground) + 1
)

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityScheduledCall:
		return "scheduled_call"
	case PriorityChat:
		return "chat"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Config sizes the pool, mirroring config.InferencePoolConfig.
type Config struct {
	// Workers is the number of goroutines draining the priority queues.
	Workers int
	// QueueSize is each priority level's channel capacity.
	QueueSize int
	// HighWaterMark bounds total queued+in-flight work before Admit
	// starts rejecting new sessions.
	HighWaterMark int
}

// Pool is the shared inference worker pool. Safe for concurrent use.
type Pool struct {
	queues  [numPriorities]chan task
	workers int
	highWaterMark int64
	depth   atomic.Int64

	log *zap.Logger

	rejected   prometheus.Counter
	depthGauge prometheus.Gauge

	stop chan struct{}
	wg   sync.WaitGroup
}

type task struct {
	run func()
}

// New constructs a Pool. Call Start to begin draining it and Stop to
// shut it down; both are safe to call once per Pool lifetime.
func New(cfg Config, log *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = cfg.Workers * cfg.QueueSize
	}
	p := &Pool{
		workers:       cfg.Workers,
		highWaterMark: int64(cfg.HighWaterMark),
		log:           log,
		stop:          make(chan struct{}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_pool_sessions_rejected_total",
			Help: "Sessions rejected with Overloaded because the inference pool was at its high-water mark.",
		}),
		depthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_pool_depth",
			Help: "Current number of queued and in-flight inference pool submissions.",
		}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan task, cfg.QueueSize)
	}
	return p
}

// Collectors returns the pool's metrics for registration with a
// prometheus.Registerer (main wires these into the process registry).
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.rejected, p.depthGauge}
}

// Start launches the worker goroutines. Call once per process.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Stop signals every worker to exit and waits for the in-flight task
// on each to finish. Queued-but-not-started tasks are dropped.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// Load reports the current queued+in-flight submission count, per §5's
// "if the inference pool queue exceeds the configured high-water
// mark" backpressure trigger.
func (p *Pool) Load() int {
	return int(p.depth.Load())
}

// Admit reports whether the pool has headroom for a new session's
// inference work, per §5 Backpressure and §8's boundary behavior: at
// the high-water mark, exactly one warn log and one counter tick are
// emitted for the rejected session.
func (p *Pool) Admit() bool {
	if p.depth.Load() < p.highWaterMark {
		return true
	}
	if p.log != nil {
		p.log.Warn("inference pool at high-water mark, rejecting new session",
			zap.Int64("depth", p.depth.Load()), zap.Int64("high_water_mark", p.highWaterMark))
	}
	p.rejected.Inc()
	return false
}

// Submit enqueues fn at the given priority and blocks until it
// completes or ctx is cancelled. Cancellation is cooperative (§5): if
// fn hasn't started running yet its queue slot is simply abandoned; if
// it has already started, Submit still returns immediately on ctx
// cancellation and discards the eventual result, but fn itself is
// expected to observe ctx and stop promptly.
//
// Submit is a package-level function rather than a method because Go
// does not support generic methods.
func Submit[T any](ctx context.Context, p *Pool, priority Priority, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result := make(chan struct {
		val T
		err error
	}, 1)

	p.depth.Add(1)
	p.depthGauge.Set(float64(p.depth.Load()))
	defer func() {
		p.depth.Add(-1)
		p.depthGauge.Set(float64(p.depth.Load()))
	}()

	t := task{run: func() {
		v, err := fn(ctx)
		result <- struct {
			val T
			err error
		}{v, err}
	}}

	q := p.queues[priority]
	select {
	case q <- t:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.stop:
		return zero, context.Canceled
	}

	select {
	case r := <-result:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// work drains the priority queues in strict priority order: a
// non-blocking pass is attempted level-by-level from emergency down to
// background before falling back to a blocking select across every
// level, so higher-priority work already queued is always preferred
// over whatever arrived first.
func (p *Pool) work() {
	defer p.wg.Done()
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		t.run()
	}
}

func (p *Pool) next() (task, bool) {
	for level := 0; level < numPriorities; level++ {
		select {
		case t := <-p.queues[level]:
			return t, true
		default:
		}
	}
	select {
	case t := <-p.queues[PriorityEmergency]:
		return t, true
	case t := <-p.queues[PriorityScheduledCall]:
		return t, true
	case t := <-p.queues[PriorityChat]:
		return t, true
	case t := <-p.queues[PriorityBackground]:
		return t, true
	case <-p.stop:
		return task{}, false
	}
}
