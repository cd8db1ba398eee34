package workers

import (
	"context"
	"sync"
	"time"

	"boxscout/internal/metrics"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

// Scheduler manages the lifecycle of background workers
type Scheduler struct {
	workers []Worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	log     *logger.Logger
	started bool
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		workers: make([]Worker, 0),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.Get().With("component", "scheduler"),
	}
}

// RegisterWorker adds a worker to the scheduler
func (s *Scheduler) RegisterWorker(w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrapf(errors.ErrInternal, "cannot register worker after scheduler started")
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered",
		"name", w.Name(),
		"interval", w.Interval(),
		"enabled", w.Enabled(),
	)

	return nil
}

// Start begins running all enabled workers
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	enabledCount := 0

	for _, w := range s.workers {
		if !w.Enabled() {
			s.log.Infow("Worker disabled, skipping", "name", w.Name())
			continue
		}

		enabledCount++
		s.wg.Add(1)
		go s.runWorker(w)
	}

	s.log.Infow("Scheduler started", "workers", enabledCount)
	return nil
}

// Stop gracefully shuts down all workers
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler...")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All workers stopped")
	case <-time.After(2 * time.Minute):
		s.log.Warn("Timeout waiting for workers to stop")
	}
}

// runWorker runs a single worker on its interval
func (s *Scheduler) runWorker(w Worker) {
	defer s.wg.Done()

	log := s.log.With("worker", w.Name())
	log.Info("Worker starting")

	// Run immediately on start
	s.executeWorker(w, log)

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info("Worker stopping")
			return
		case <-ticker.C:
			s.executeWorker(w, log)
		}
	}
}

// executeWorker runs one iteration with panic recovery
func (s *Scheduler) executeWorker(w Worker, log *logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Worker panicked", "panic", r)
			metrics.WorkerExecutions.WithLabelValues(w.Name(), "panic").Inc()
		}
	}()

	start := time.Now()
	err := w.Run(s.ctx)
	duration := time.Since(start)

	metrics.WorkerDuration.WithLabelValues(w.Name()).Observe(duration.Seconds())
	metrics.WorkerLastRun.WithLabelValues(w.Name()).Set(float64(start.Unix()))

	if err != nil {
		metrics.WorkerExecutions.WithLabelValues(w.Name(), "error").Inc()
		log.Errorw("Worker run failed",
			"error", err,
			"duration", duration,
		)
		return
	}

	metrics.WorkerExecutions.WithLabelValues(w.Name(), "success").Inc()
	log.Debugw("Worker run completed", "duration", duration)
}
