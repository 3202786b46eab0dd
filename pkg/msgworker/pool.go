package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// IngestJob is one unit of inbound work: a received message or a sync batch
// to apply for a single chat. Jobs for the same (session, chat) pair always
// land on the same worker, which preserves per-chat arrival order.
type IngestJob struct {
	SessionID string
	ChatID    string
	Handler   func(ctx context.Context) error
}

// PoolStats holds real-time pool metrics.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

// WorkerStats holds per-worker metrics.
type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// IngestWorkerPool shards inbound webhook work across a fixed set of workers.
type IngestWorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id            int
	jobQueue      chan IngestJob
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32 // atomic: 1 if processing, 0 if idle
	jobsProcessed int64
	pool          *IngestWorkerPool
}

// NewIngestWorkerPool creates a pool with the given worker and queue sizes.
func NewIngestWorkerPool(numWorkers, queueSize int) *IngestWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	return &IngestWorkerPool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches all workers. They run until ctx is cancelled or Stop is
// called.
func (p *IngestWorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan IngestJob, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[INGEST_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch routes a job to its shard without blocking. Returns false when
// the shard's queue is full or the pool is stopped, so HTTP handlers can
// apply backpressure.
func (p *IngestWorkerPool) TryDispatch(job IngestJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardForChat(job.SessionID, job.ChatID)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[INGEST_POOL] Worker %d queue full (or stopped), dropping job for %s|%s",
		shard, job.SessionID, job.ChatID)
	return false
}

// Dispatch routes a job to its shard, dropping it if the queue is full.
func (p *IngestWorkerPool) Dispatch(job IngestJob) {
	_ = p.TryDispatch(job)
}

// Stop shuts the pool down gracefully, draining queued jobs.
func (p *IngestWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[INGEST_POOL] Stopping workers...")

		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}

		p.wg.Wait()

		logrus.Info("[INGEST_POOL] All workers stopped")
	})
}

// shardForChat maps a (session, chat) pair onto a worker via FNV hashing.
func (p *IngestWorkerPool) shardForChat(sessionID, chatID string) int {
	key := sessionID + "|" + chatID
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats returns a snapshot of pool metrics.
func (p *IngestWorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0

	for i, w := range p.workers {
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}

		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	logrus.Debugf("[INGEST_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[INGEST_POOL] Worker %d shutting down", w.id)
				return
			}

			w.process(job)

		case <-w.ctx.Done():
			logrus.Debugf("[INGEST_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) process(job IngestJob) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[INGEST_POOL] Worker %d panic for %s|%s: %v", w.id, job.SessionID, job.ChatID, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[INGEST_POOL] Worker %d job failed for %s|%s",
			w.id, job.SessionID, job.ChatID)
	}
}

// drainQueue processes jobs still queued at shutdown so accepted webhook
// work is not silently lost.
func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}
