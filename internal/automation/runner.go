package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"qaworkbench/internal/algorithms"
)

// ErrRunnerClosed is returned by Submit after Close.
var ErrRunnerClosed = errors.New("runner closed")

// Request is one unit of work handed to a Runner.
type Request struct {
	Check       int
	Generation  uint64
	AlgorithmID string
	Parameters  map[string]any
}

// Handle identifies a submitted request.
type Handle struct {
	ID         uint64 `json:"id"`
	Check      int    `json:"check"`
	Generation uint64 `json:"generation"`
}

// Completion reports the end of a run. Err carries the reason when
// Successful is false.
type Completion struct {
	Handle     Handle
	Successful bool
	Results    map[string]any
	Err        error
	Elapsed    time.Duration
}

// Runner executes requests out of band and delivers their completions on a
// channel.
type Runner interface {
	Submit(ctx context.Context, req Request) (Handle, error)
	Completions() <-chan Completion
}

// LocalRunner runs registry algorithms on a bounded number of goroutines.
type LocalRunner struct {
	registry *algorithms.Registry
	log      *zap.Logger
	slots    chan struct{}
	out      chan Completion
	done     chan struct{}
	nextID   atomic.Uint64
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

func NewLocalRunner(registry *algorithms.Registry, workers int, log *zap.Logger) *LocalRunner {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalRunner{
		registry: registry,
		log:      log,
		slots:    make(chan struct{}, workers),
		out:      make(chan Completion, workers),
		done:     make(chan struct{}),
	}
}

func (r *LocalRunner) Completions() <-chan Completion { return r.out }

// Submit queues req and returns at once. The run is detached from ctx's
// cancellation; in-flight runs always finish.
func (r *LocalRunner) Submit(ctx context.Context, req Request) (Handle, error) {
	alg, ok := r.registry.Get(req.AlgorithmID)
	if !ok {
		return Handle{}, fmt.Errorf("unknown algorithm %q", req.AlgorithmID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Handle{}, ErrRunnerClosed
	}
	h := Handle{ID: r.nextID.Add(1), Check: req.Check, Generation: req.Generation}
	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), h, alg, req.Parameters)
	return h, nil
}

func (r *LocalRunner) run(ctx context.Context, h Handle, alg algorithms.Algorithm, params map[string]any) {
	defer r.wg.Done()
	select {
	case r.slots <- struct{}{}:
	case <-r.done:
		return
	}
	log := r.log.With(zap.String("algorithm", algorithms.ID(alg)), zap.Uint64("dispatch", h.ID))
	start := time.Now()
	results, err := r.execute(ctx, alg, params, log)
	<-r.slots

	c := Completion{Handle: h, Successful: err == nil, Results: results, Err: err, Elapsed: time.Since(start)}
	if err != nil {
		log.Warn("algorithm run failed", zap.Error(err))
	}
	select {
	case r.out <- c:
	case <-r.done:
	}
}

func (r *LocalRunner) execute(ctx context.Context, alg algorithms.Algorithm, params map[string]any, log *zap.Logger) (results map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			results = nil
			err = fmt.Errorf("algorithm panicked: %v", p)
		}
	}()
	return alg.Run(ctx, params, log)
}

// Close stops accepting work, waits for running algorithms and closes the
// completion channel. Runs still waiting to deliver drop their completion.
func (r *LocalRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()
	r.wg.Wait()
	close(r.out)
}
