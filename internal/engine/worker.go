package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Narcis13/workscript/internal/platform/logger"
)

// WorkerPool drains the submission queue onto the engine. Each execution
// runs single-threaded on one worker; parallelism is across executions.
type WorkerPool struct {
	engine  *Engine
	queue   SubmissionQueue
	log     logger.Logger
	workers int

	active int32
	total  int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers int
}

// NewWorkerPool creates a pool bound to an engine and a queue.
func NewWorkerPool(engine *Engine, queue SubmissionQueue, log logger.Logger, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		engine:  engine,
		queue:   queue,
		log:     log,
		workers: cfg.Workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.log.Info("worker pool started", "workers", p.workers)
}

// Stop cancels in-flight executions and shuts the pool down. In-flight node
// bodies are allowed to finish, after which their executions end as
// cancelled; waiting is bounded.
func (p *WorkerPool) Stop(timeout time.Duration) {
	p.cancel()
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.log.Warn("worker pool stop timed out", "timeout", timeout)
	}
}

// Active returns the number of executions currently running.
func (p *WorkerPool) Active() int {
	return int(atomic.LoadInt32(&p.active))
}

// Processed returns the total number of submissions handled.
func (p *WorkerPool) Processed() int64 {
	return atomic.LoadInt64(&p.total)
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	for {
		sub, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			return
		}
		if sub == nil {
			continue
		}

		atomic.AddInt32(&p.active, 1)
		p.handle(sub)
		atomic.AddInt32(&p.active, -1)
		atomic.AddInt64(&p.total, 1)
	}
}

func (p *WorkerPool) handle(sub *Submission) {
	def := sub.Definition
	if def == nil && sub.WorkflowID != "" {
		stored, err := p.engine.Store().Get(p.ctx, sub.WorkflowID)
		if err != nil {
			p.log.Error("submission references unknown workflow",
				"submissionId", sub.ID, "workflowId", sub.WorkflowID, "error", err)
			return
		}
		def = stored
	}
	if def == nil {
		p.log.Error("submission carries no workflow", "submissionId", sub.ID)
		return
	}

	opts := sub.Options
	if opts == nil {
		opts = &Options{}
	}
	if opts.ExecutionID == "" {
		opts.ExecutionID = sub.ID
	}

	exec, err := p.engine.Execute(p.ctx, def, opts)
	if err != nil {
		p.log.Error("execution rejected",
			"submissionId", sub.ID, "workflowId", def.ID, "error", err)
		return
	}

	p.log.Info("execution finished",
		"executionId", exec.ID, "workflowId", exec.WorkflowID, "status", exec.StatusNow())
}
