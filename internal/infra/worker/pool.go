// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPoolFull is returned by Submit when every worker is busy and the backlog is full.
var ErrPoolFull = errors.New("worker queue full")

// Task is one unit of work run by a pool goroutine.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Its size bounds
// concurrent calls to the external APIs the tasks use.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	once sync.Once
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{jobs: make(chan Task, workers), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Size() int { return p.n }

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

// run keeps a panicking task from taking the worker down with it.
func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Msg("worker task error")
	}
}

// Stop signals the workers and waits for running tasks to return.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit never blocks; a saturated pool returns ErrPoolFull and the caller
// tries again on its next tick.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrPoolFull
	}
}
