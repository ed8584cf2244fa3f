package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/focusmon/screenwatch/internal/application"
	"github.com/focusmon/screenwatch/internal/domain/jobs"
	"github.com/focusmon/screenwatch/internal/domain/screenshots"
	"github.com/focusmon/screenwatch/internal/domain/vision"
	"github.com/focusmon/screenwatch/internal/middleware"
)

// ErrAlreadyProcessing guards against a second job for an item with one
// outstanding; the check lives here, not in the broker.
var ErrAlreadyProcessing = errors.New("screenshot already processing")

// ErrAlreadyQueued is returned when a waiting or active job already
// references the item. At most one live job per screenshot.
var ErrAlreadyQueued = errors.New("screenshot already queued")

// Service implements the analysis pipeline use-cases.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Repo     screenshots.Repository
	Broker   jobs.Broker
	Analyzer vision.Analyzer
	Clock    application.Clock

	JobTimeout         time.Duration
	Priority           int
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

type EnqueueResult struct {
	JobID string `json:"job_id"`
}

type StatsResult struct {
	Queue    jobs.Stats     `json:"queue"`
	Database map[string]int `json:"database"`
}

type SweepResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type PruneResult struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type HealthResult struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EnqueueForAnalysis schedules one screenshot. A broker failure surfaces to
// the caller; the item stays `pending` and the sweep re-drives it later.
func (s *Service) EnqueueForAnalysis(ctx context.Context, id screenshots.ScreenshotID) (EnqueueResult, error) {
	item, err := s.Repo.Get(ctx, id)
	if err != nil {
		return EnqueueResult{}, err
	}
	if item.Status == screenshots.StatusProcessing {
		return EnqueueResult{}, ErrAlreadyProcessing
	}
	queued, err := s.Broker.HasJobFor(ctx, string(item.ID))
	if err != nil {
		return EnqueueResult{}, err
	}
	if queued {
		return EnqueueResult{}, ErrAlreadyQueued
	}

	jobID, err := s.Broker.Enqueue(ctx, jobs.Payload{
		ScreenshotID: string(item.ID),
		FilePath:     item.FilePath,
	}, jobs.Options{Priority: s.Priority, Timeout: s.JobTimeout})
	if err != nil {
		return EnqueueResult{}, err
	}

	log.WithFields(log.Fields{
		"job_id":        jobID,
		"screenshot_id": item.ID,
		"file_path":     item.FilePath,
	}).Info("screenshot queued for processing")
	return EnqueueResult{JobID: jobID}, nil
}

// ProcessJob is the worker handler: the only mutator of processing_status
// besides Reprocess. The item record is written before the job outcome is
// reported so the two views cannot disagree.
func (s *Service) ProcessJob(ctx context.Context, j *jobs.Job) error {
	id := screenshots.ScreenshotID(j.Payload.ScreenshotID)
	fields := log.Fields{"job_id": j.ID, "screenshot_id": id}

	if err := s.Repo.SetProcessing(ctx, id); err != nil {
		if errors.Is(err, screenshots.ErrNotFound) {
			// item deleted between enqueue and pickup; drop the job
			log.WithFields(fields).Warn("screenshot gone, dropping job")
			return nil
		}
		return fmt.Errorf("marking processing: %w", err)
	}

	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()
	middleware.IncrementAnalyses()

	a, err := s.Analyzer.Analyze(ctx, j.Payload.FilePath)
	now := s.Clock.Now()
	if err != nil {
		if ctx.Err() != nil {
			// stalled, not failed: leave the row `processing` for the
			// requeued attempt
			return ctx.Err()
		}
		middleware.IncrementAnalysesFailed()
		if ferr := s.Repo.MarkFailed(ctx, id, err.Error(), now); ferr != nil {
			if errors.Is(ferr, screenshots.ErrNotFound) {
				log.WithFields(fields).Warn("terminal write skipped, item was reset mid-flight")
			} else {
				log.WithFields(fields).WithError(ferr).Error("failed to record processing error")
			}
		}
		return err
	}

	if err := s.Repo.MarkCompleted(ctx, id, a, now); err != nil {
		if errors.Is(err, screenshots.ErrNotFound) {
			log.WithFields(fields).Warn("completed write skipped, item was reset mid-flight")
		}
		// fail loud: a finished analysis must never be dropped silently
		return fmt.Errorf("analysis succeeded but result write failed: %w", err)
	}

	log.WithFields(fields).WithFields(log.Fields{
		"app_name":      a.AppName,
		"activity_type": a.ActivityType,
	}).Info("screenshot analysis completed")
	return nil
}

// Reprocess resets a terminal item and re-enqueues it from scratch. A still
// pending item has nothing to reset and goes straight back to the queue.
func (s *Service) Reprocess(ctx context.Context, id screenshots.ScreenshotID) (EnqueueResult, error) {
	item, err := s.Repo.Get(ctx, id)
	if err != nil {
		return EnqueueResult{}, err
	}
	if item.Status == screenshots.StatusProcessing {
		return EnqueueResult{}, ErrAlreadyProcessing
	}
	if item.Status.CanTransition(screenshots.StatusPending) {
		if err := s.Repo.Reset(ctx, id); err != nil {
			return EnqueueResult{}, err
		}
	}
	return s.EnqueueForAnalysis(ctx, id)
}

// Get exposes the item's observable state.
func (s *Service) Get(ctx context.Context, id screenshots.ScreenshotID) (*screenshots.Screenshot, error) {
	return s.Repo.Get(ctx, id)
}

// QueueStats merges broker counts with the DB status breakdown.
func (s *Service) QueueStats(ctx context.Context) (StatsResult, error) {
	qs, err := s.Broker.Stats(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	byStatus, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	db := make(map[string]int, len(byStatus))
	for k, v := range byStatus {
		db[string(k)] = v
	}
	return StatsResult{Queue: qs, Database: db}, nil
}

// RetryJob re-drives one failed job; manual operator path, distinct from the
// adapter's automatic retries.
func (s *Service) RetryJob(ctx context.Context, jobID string) error {
	if err := s.Broker.Retry(ctx, jobID); err != nil {
		return err
	}
	log.WithField("job_id", jobID).Info("job retry initiated")
	return nil
}

// SweepPending re-drives items stuck in `pending` (e.g. after a crash or an
// enqueue-time broker outage) through the normal enqueue path. Items that
// already have a live job are skipped, so back-to-back sweeps over a queue
// backlog never duplicate work.
func (s *Service) SweepPending(ctx context.Context, limit int) (SweepResult, error) {
	items, err := s.Repo.ListPending(ctx, s.Clock.Now(), limit)
	if err != nil {
		return SweepResult{}, err
	}
	log.WithField("count", len(items)).Info("pending screenshots found for sweep")

	var res SweepResult
	for _, item := range items {
		queued, err := s.Broker.HasJobFor(ctx, string(item.ID))
		if err != nil {
			log.WithFields(log.Fields{"screenshot_id": item.ID}).WithError(err).Error("failed to check queue for screenshot")
			res.Failed++
			continue
		}
		if queued {
			res.Skipped++
			continue
		}
		if _, err := s.Broker.Enqueue(ctx, jobs.Payload{
			ScreenshotID: string(item.ID),
			FilePath:     item.FilePath,
		}, jobs.Options{Priority: s.Priority, Timeout: s.JobTimeout}); err != nil {
			log.WithFields(log.Fields{"screenshot_id": item.ID}).WithError(err).Error("failed to queue screenshot")
			res.Failed++
			continue
		}
		res.Queued++
	}
	return res, nil
}

// Prune drops old terminal queue bookkeeping; screenshot rows are untouched.
func (s *Service) Prune(ctx context.Context) (PruneResult, error) {
	completed, err := s.Broker.Clean(ctx, s.CompletedRetention, jobs.StateCompleted)
	if err != nil {
		return PruneResult{}, err
	}
	failed, err := s.Broker.Clean(ctx, s.FailedRetention, jobs.StateFailed)
	if err != nil {
		return PruneResult{Completed: completed}, err
	}
	return PruneResult{Completed: completed, Failed: failed}, nil
}

// CheckHealth probes the vision API and reports reachability, never a raw
// internal error object.
func (s *Service) CheckHealth(ctx context.Context) HealthResult {
	res := HealthResult{Healthy: true, Timestamp: s.Clock.Now()}
	if err := s.Analyzer.CheckHealth(ctx); err != nil {
		res.Healthy = false
		res.Detail = err.Error()
	}
	return res
}
