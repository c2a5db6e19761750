// Package workerpool runs tasks on a bounded set of goroutines and hands
// back futures that can be drained in completion order.
package workerpool

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

var ErrPoolShutdown = errors.New("worker pool is shut down")

type Mode string

const (
	// ModeThread is a fixed set of worker goroutines.
	ModeThread Mode = "thread"
	// ModeAsync starts a goroutine per task with no bound.
	ModeAsync Mode = "async"
)

// Pool lifecycle events passed to an EventFunc.
const (
	EventStart     = "start"
	EventStop      = "stop"
	EventTaskPanic = "task_panic"
	EventDropped   = "task_dropped"
)

type EventFunc func(event string)

// Worker is handed to every task. Resource is the value the pool's
// resource factory built for this worker; tasks on the same worker never
// run concurrently, so it needs no locking.
type Worker struct {
	ID       int
	Resource any

	events EventFunc
}

func (w *Worker) emit(event string) {
	if w != nil && w.events != nil {
		w.events(event)
	}
}

type task struct {
	run    func(w *Worker)
	cancel func(err error)
}

type Pool interface {
	Mode() Mode
	Size() int
	// Shutdown stops accepting work. With wait it blocks until queued and
	// running tasks finish; without it queued tasks fail with
	// ErrPoolShutdown and running tasks are left to finish on their own.
	Shutdown(wait bool)

	enqueue(t task) error
}

type options struct {
	resource func(id int) any
	events   EventFunc
	logger   *slog.Logger
}

type Option func(*options)

// WithResource builds one value per worker at construction time.
func WithResource(factory func(id int) any) Option {
	return func(o *options) { o.resource = factory }
}

func WithEvents(f EventFunc) Option {
	return func(o *options) { o.events = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) emit(event string) {
	if o.events != nil {
		o.events(event)
	}
}

func (o options) newWorker(id int) *Worker {
	w := &Worker{ID: id, events: o.events}
	if o.resource != nil {
		w.Resource = o.resource(id)
	}
	return w
}

// ThreadPool is a fixed pool of goroutines over an unbounded FIFO queue.
type ThreadPool struct {
	opts options
	size int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	wg sync.WaitGroup
}

// NewThreadPool starts size workers (at least one).
func NewThreadPool(size int, opts ...Option) *ThreadPool {
	if size <= 0 {
		size = 1
	}
	p := &ThreadPool{opts: buildOptions(opts), size: size}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		w := p.opts.newWorker(i)
		p.wg.Add(1)
		go p.work(w)
	}
	p.opts.logger.Debug("[pool] started", "mode", ModeThread, "workers", size)
	p.opts.emit(EventStart)
	return p
}

func (p *ThreadPool) Mode() Mode { return ModeThread }
func (p *ThreadPool) Size() int  { return p.size }

func (p *ThreadPool) enqueue(t task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolShutdown
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return nil
}

func (p *ThreadPool) work(w *Worker) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = task{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.exec(w, t)
	}
}

func (p *ThreadPool) exec(w *Worker, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.logger.Error("[pool] worker recovered panic", "worker", w.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t.run(w)
}

func (p *ThreadPool) Shutdown(wait bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if wait {
			p.wg.Wait()
		}
		return
	}
	p.closed = true
	var dropped []task
	if !wait {
		dropped = p.queue
		p.queue = nil
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, t := range dropped {
		t.cancel(ErrPoolShutdown)
		p.opts.emit(EventDropped)
	}
	if wait {
		p.wg.Wait()
	}
	p.opts.logger.Debug("[pool] stopped", "mode", ModeThread, "dropped", len(dropped))
	p.opts.emit(EventStop)
}

// AsyncPool runs every task on its own goroutine.
type AsyncPool struct {
	opts options

	mu     sync.Mutex
	closed bool
	nextID int

	wg sync.WaitGroup
}

func NewAsyncPool(opts ...Option) *AsyncPool {
	p := &AsyncPool{opts: buildOptions(opts)}
	p.opts.emit(EventStart)
	return p
}

func (p *AsyncPool) Mode() Mode { return ModeAsync }

// Size is zero: the pool is unbounded.
func (p *AsyncPool) Size() int { return 0 }

func (p *AsyncPool) enqueue(t task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	id := p.nextID
	p.nextID++
	p.wg.Add(1)
	p.mu.Unlock()

	w := p.opts.newWorker(id)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.opts.logger.Error("[pool] async task recovered panic", "panic", r)
			}
		}()
		t.run(w)
	}()
	return nil
}

func (p *AsyncPool) Shutdown(wait bool) {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()

	if wait {
		p.wg.Wait()
	}
	if !already {
		p.opts.emit(EventStop)
	}
}

func stack() []byte { return debug.Stack() }
