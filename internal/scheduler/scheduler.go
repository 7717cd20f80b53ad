package scheduler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/challenges"
	"github.com/agent-arena/agent-arena/internal/config"
	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/metrics"
	"github.com/agent-arena/agent-arena/internal/models"
)

var (
	// ErrQueueFull is returned when the evaluation queue cannot take more
	// work. The submission row, if one was created, is marked error.
	ErrQueueFull = errors.New("evaluation queue is full")

	// ErrInvalidBase64 wraps base64 decode failures of the compressed
	// payload.
	ErrInvalidBase64 = errors.New("failed to decode compressed data")
)

// rateWindow is the trailing window the per-agent submission limit
// applies to.
const rateWindow = time.Hour

// sweepSlack is added to the sandbox timeout when deciding that a
// processing row predating this run can no longer finish.
const sweepSlack = 30 * time.Second

type evalJob struct {
	submissionID string
	challengeID  string
	compressed   []byte
	decompressor string
}

// Scheduler accepts submissions, persists them in pending state and
// evaluates them on a bounded worker pool. Submission artifacts travel
// with the queued job, not the database; a row whose job is lost to a
// crash stays processing until the boot sweep marks it.
type Scheduler struct {
	store    *database.Store
	registry *challenges.Registry
	metrics  *metrics.Collector
	logger   *logrus.Logger
	cfg      config.Config

	queue     chan evalJob
	done      chan struct{}
	wg        sync.WaitGroup
	stopped   atomic.Bool
	rankLocks sync.Map
}

func New(store *database.Store, registry *challenges.Registry, collector *metrics.Collector, cfg config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		registry: registry,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan evalJob, cfg.Scheduler.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start sweeps rows stranded in processing by an earlier crash, then
// launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.store.SweepStuck(ctx, s.cfg.Sandbox.Timeout+sweepSlack); err != nil {
		return fmt.Errorf("sweep stuck submissions: %w", err)
	}

	for i := 0; i < s.cfg.Scheduler.WorkerCount; i++ {
		workerID := uuid.New().String()[:8]
		s.wg.Add(1)
		go s.worker(workerID)
	}

	s.logger.WithFields(logrus.Fields{
		"workers":    s.cfg.Scheduler.WorkerCount,
		"queue_size": s.cfg.Scheduler.QueueSize,
	}).Info("Submission scheduler started")
	return nil
}

// Stop lets queued and in-flight evaluations finish within the stop
// grace period. Anything still mid-flight after that is left for the
// next boot's sweep.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		s.logger.Info("Submission scheduler stopped")
	case <-time.After(s.cfg.Scheduler.StopGrace):
		s.logger.Warn("Scheduler stop grace elapsed with evaluations still running")
	}
}

// Submit validates the request, persists a pending submission and
// enqueues its evaluation. On a saturated queue the persisted row is
// marked error with QUEUE_FULL and the returned submission carries its
// id alongside ErrQueueFull.
func (s *Scheduler) Submit(ctx context.Context, challengeID, agentID, compressedB64, decompressor string) (*models.Submission, error) {
	if s.stopped.Load() {
		return nil, ErrQueueFull
	}
	if _, ok := s.registry.Get(challengeID); !ok {
		return nil, database.ErrChallengeNotFound
	}

	recent, err := s.store.CountRecentSubmissions(ctx, agentID, challengeID, rateWindow)
	if err != nil {
		return nil, err
	}
	if recent >= s.cfg.RateLimit.SubmissionsPerHour {
		return nil, database.ErrRateLimited
	}

	compressed, err := base64.StdEncoding.DecodeString(compressedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	sub := &models.Submission{
		ID:                    uuid.New().String(),
		AgentID:               agentID,
		ChallengeID:           challengeID,
		CompressedSizeBytes:   int64(len(compressed)),
		DecompressorSizeBytes: int64(len(decompressor)),
		Status:                models.StatusPending,
	}
	if err := s.store.CreateSubmission(ctx, sub, s.cfg.RateLimit.SubmissionsPerHour, rateWindow); err != nil {
		return nil, err
	}

	job := evalJob{
		submissionID: sub.ID,
		challengeID:  challengeID,
		compressed:   compressed,
		decompressor: decompressor,
	}
	select {
	case s.queue <- job:
		s.metrics.QueueDepth.Set(float64(len(s.queue)))
		s.logger.WithFields(logrus.Fields{
			"submission_id": sub.ID,
			"challenge_id":  challengeID,
			"agent_id":      agentID,
		}).Info("Submission queued for evaluation")
		return sub, nil
	default:
		s.logger.WithFields(logrus.Fields{
			"submission_id": sub.ID,
			"challenge_id":  challengeID,
		}).Warn("Evaluation queue full, rejecting submission")
		if _, ferr := s.store.FailSubmission(ctx, sub.ID, models.ErrCodeQueueFull, "Evaluation queue is full", 0); ferr != nil {
			s.logger.WithError(ferr).WithField("submission_id", sub.ID).Error("Failed to mark queue-full submission")
		}
		s.metrics.SubmissionsTotal.WithLabelValues(challengeID, string(models.StatusError)).Inc()
		return sub, ErrQueueFull
	}
}

func (s *Scheduler) worker(id string) {
	defer s.wg.Done()
	logger := s.logger.WithField("worker_id", id)
	logger.Debug("Evaluation worker started")

	for {
		select {
		case <-s.done:
			// Drain the queue so accepted submissions still get their
			// terminal state, then exit.
			for {
				select {
				case job := <-s.queue:
					s.process(logger, job)
				default:
					logger.Debug("Evaluation worker stopped")
					return
				}
			}
		case job := <-s.queue:
			s.process(logger, job)
		}
	}
}

// process owns one submission from claim to terminal state. Evaluations
// run to completion even during shutdown, so the context is not tied to
// Stop.
func (s *Scheduler) process(logger *logrus.Entry, job evalJob) {
	ctx := context.Background()
	s.metrics.QueueDepth.Set(float64(len(s.queue)))

	claimed, err := s.store.ClaimProcessing(ctx, job.submissionID)
	if err != nil {
		logger.WithError(err).WithField("submission_id", job.submissionID).Error("Failed to claim submission")
		return
	}
	if !claimed {
		logger.WithField("submission_id", job.submissionID).Warn("Submission no longer pending, skipping")
		return
	}

	challenge, ok := s.registry.Get(job.challengeID)
	if !ok {
		if _, ferr := s.store.FailSubmission(ctx, job.submissionID, models.ErrCodeInternal, "challenge is no longer registered", 0); ferr != nil {
			logger.WithError(ferr).WithField("submission_id", job.submissionID).Error("Failed to mark orphaned submission")
		}
		return
	}

	s.metrics.WorkersBusy.Inc()
	started := time.Now()
	result := challenge.Evaluate(ctx, job.compressed, job.decompressor)
	s.metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	s.metrics.WorkersBusy.Dec()

	status := models.StatusScored
	var score int64
	if result.Success {
		score = *result.Score
	} else {
		status = models.StatusError
	}
	var errMsg, errCode *string
	if result.Error != "" {
		errMsg = &result.Error
	}
	if result.ErrorCode != "" {
		errCode = &result.ErrorCode
	}

	wrote, err := s.store.CompleteSubmission(ctx, job.submissionID, status, score, errMsg, errCode, result.Breakdown, result.ExecutionTimeMS)
	if err != nil {
		logger.WithError(err).WithField("submission_id", job.submissionID).Error("Failed to store evaluation result")
		return
	}
	if !wrote {
		logger.WithField("submission_id", job.submissionID).Warn("Submission already terminal, result dropped")
		return
	}
	s.metrics.SubmissionsTotal.WithLabelValues(job.challengeID, string(status)).Inc()

	if result.Success {
		s.recomputeRanks(ctx, logger, job.challengeID)
	}

	fields := logrus.Fields{
		"submission_id": job.submissionID,
		"challenge_id":  job.challengeID,
		"status":        status,
		"duration_ms":   time.Since(started).Milliseconds(),
	}
	if result.Success {
		fields["score"] = score
	} else {
		fields["error_code"] = result.ErrorCode
	}
	logger.WithFields(fields).Info("Submission evaluated")
}

// recomputeRanks serializes rank updates per challenge. Concurrent
// recomputes would produce the same final state, but serializing keeps
// the write set small and the challenge row consistent.
func (s *Scheduler) recomputeRanks(ctx context.Context, logger *logrus.Entry, challengeID string) {
	lock, _ := s.rankLocks.LoadOrStore(challengeID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.RecomputeRanks(ctx, challengeID); err != nil {
		logger.WithError(err).WithField("challenge_id", challengeID).Error("Failed to recompute ranks")
	}
}
