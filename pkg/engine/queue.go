package engine

import (
	"context"
	"sync"

	"scanhub/pkg/logger"
)

// ScanQueue bounds the number of scans executing at once with a simple semaphore
type ScanQueue struct {
	semaphore chan struct{}
	running   int
	queued    int
	mu        sync.Mutex
	logger    *logger.Logger
}

var (
	globalQueue *ScanQueue
	queueOnce   sync.Once
)

func NewScanQueue(maxConcurrent int, log *logger.Logger) *ScanQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ScanQueue{
		semaphore: make(chan struct{}, maxConcurrent),
		logger:    log,
	}
}

// InitGlobalQueue initializes the global scan queue with max concurrency
func InitGlobalQueue(maxConcurrent int, log *logger.Logger) {
	queueOnce.Do(func() {
		globalQueue = NewScanQueue(maxConcurrent, log)
		globalQueue.logger.WithFields(logger.Fields{
			"max_concurrent": cap(globalQueue.semaphore),
		}).Info("Scan queue initialized")
	})
}

// GetGlobalQueue returns the global queue instance (initializes with default if needed)
func GetGlobalQueue() *ScanQueue {
	InitGlobalQueue(1, logger.Default())
	return globalQueue
}

// Execute blocks until a slot is available, then runs fn. A scan stopped
// while still queued never runs and gets ctx's error.
func (q *ScanQueue) Execute(ctx context.Context, fn func() error) error {
	q.mu.Lock()
	q.queued++
	currentQueued := q.queued
	currentRunning := q.running
	maxSlots := cap(q.semaphore)
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"queued":  currentQueued,
		"running": currentRunning,
		"slots":   maxSlots,
	}).Info("Scan added to queue")

	select {
	case q.semaphore <- struct{}{}:
	case <-ctx.Done():
		q.mu.Lock()
		q.queued--
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.queued--
	q.running++
	finalQueued := q.queued
	finalRunning := q.running
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"running": finalRunning,
		"queued":  finalQueued,
	}).Info("Scan execution started")

	defer func() {
		<-q.semaphore
		q.mu.Lock()
		q.running--
		remainingRunning := q.running
		remainingQueued := q.queued
		q.mu.Unlock()

		q.logger.WithFields(logger.Fields{
			"running": remainingRunning,
			"queued":  remainingQueued,
		}).Info("Scan execution completed, slot released")
	}()

	return fn()
}

// GetStatus returns current queue status
func (q *ScanQueue) GetStatus() (running, queued, maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running, q.queued, cap(q.semaphore)
}
