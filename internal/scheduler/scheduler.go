// Package scheduler decides which in-flight shipments get a carrier poll on
// this tick, how urgent each poll is, and dispatches the work to the job
// queue in bounded, deduplicated batches.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"shipwatch/internal/calendar"
	"shipwatch/internal/domain"
)

// Paging and ceiling are policy, not configuration: one page per bulk submit,
// and a hard cap on jobs per run so a backlog never turns one tick into an
// unbounded scan. Work past the cap is deferred to the next tick.
const (
	pageSize      = 500
	maxJobsPerRun = 10000
)

// CandidateSource pages through shipments already matching the due-for-poll
// predicate (active shipment, carrier resolved, merchant active,
// next_poll_at reached), ordered by a stable key.
type CandidateSource interface {
	FindDueForPoll(ctx context.Context, offset, limit int) ([]domain.PollCandidate, error)
}

// JobQueue accepts one page of poll jobs per call. A call either lands whole
// or fails whole, and resubmitting a dedupe key the queue already holds must
// be a no-op.
type JobQueue interface {
	BulkSubmit(ctx context.Context, jobs []domain.PollJob) error
}

// Engine runs one scheduling pass per invocation. It keeps no state between
// runs and never mutates shipments, so concurrent or overlapping invocations
// are safe; dedupe keys make the worst case a redundant no-op submission.
type Engine struct {
	source CandidateSource
	queue  JobQueue
	log    *zap.Logger
	now    func() time.Time
}

func New(source CandidateSource, queue JobQueue, log *zap.Logger) *Engine {
	return &Engine{
		source: source,
		queue:  queue,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run pages through due shipments, classifies each into an urgency tier, and
// bulk-submits one batch per page. A store read failure aborts the run: with
// no reliable picture of what is due, the only safe move is to stop and let
// the trigger retry the whole tick. A queue write failure is scoped to its
// page: it is recorded in the result's Errors and later pages still run.
// The run ends either when the store returns a short page (complete) or when
// the next full page would push past the per-run ceiling (truncated).
func (e *Engine) Run(ctx context.Context) (domain.RunResult, error) {
	started := e.now()
	var res domain.RunResult

	offset, page := 0, 0
	for {
		candidates, err := e.source.FindDueForPoll(ctx, offset, pageSize)
		if err != nil {
			return domain.RunResult{}, errors.Wrapf(err, "find due shipments (offset %d)", offset)
		}
		res.ShipmentsFound += len(candidates)

		if len(candidates) > 0 {
			jobs := e.buildJobs(candidates)
			if err := e.queue.BulkSubmit(ctx, jobs); err != nil {
				e.log.Warn("bulk submit failed, continuing with next page",
					zap.Int("page", page), zap.Int("jobs", len(jobs)), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("page %d: bulk submit of %d jobs: %v", page, len(jobs), err))
			} else {
				res.JobsEnqueued += len(jobs)
			}
		}

		if len(candidates) < pageSize {
			break
		}
		offset += len(candidates)
		page++
		if res.ShipmentsFound+pageSize > maxJobsPerRun {
			res.Truncated = true
			break
		}
	}

	res.Duration = e.now().Sub(started)
	return res, nil
}

func (e *Engine) buildJobs(candidates []domain.PollCandidate) []domain.PollJob {
	now := e.now()
	jobs := make([]domain.PollJob, 0, len(candidates))
	for _, c := range candidates {
		tier := calendar.ClassifyUrgency(c.ExpectedDeliveryDate, now)
		jobs = append(jobs, domain.NewPollJob(c.ID, tier))
	}
	return jobs
}
