package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage is the non-transactional read surface over jobs, used by the
// listing and status endpoints.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// ListJobs returns one page of job summaries, newest first, plus the total
// count of jobs matching the filter before paging.
func (s *JobStorage) ListJobs(ctx context.Context, opts models.ListOptions) ([]*models.JobSummary, int, error) {
	var query *badgerhold.Query
	if opts.JobType != "" {
		query = badgerhold.Where("JobType").Eq(opts.JobType).SortBy("CreatedAt").Reverse()
	} else {
		query = badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	// Outcome lives on the per-job state record, so the outcome filter is
	// applied after joining. Paging happens after filtering so the total
	// reflects the filter.
	summaries := make([]*models.JobSummary, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]

		var outcome models.Outcome
		var contractCount int
		var state models.JobState
		err := s.db.Store().Get(job.ID, &state)
		switch {
		case err == nil:
			outcome = state.LatestOutcome
			contractCount = state.ContractCount
		case errors.Is(err, badgerhold.ErrNotFound):
			// Job has no contracts yet
		default:
			return nil, 0, fmt.Errorf("failed to get job state: %w", err)
		}

		if opts.Outcome != "" && outcome != opts.Outcome {
			continue
		}

		summaries = append(summaries, &models.JobSummary{
			JobID:         job.ID,
			JobType:       job.JobType,
			JobName:       job.JobName,
			Tags:          job.Tags,
			ParentJobID:   job.ParentJobID,
			CreatedAt:     job.CreatedAt,
			Outcome:       outcome,
			ContractCount: contractCount,
		})
	}

	total := len(summaries)

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if opts.Limit > 0 && offset+opts.Limit < end {
		end = offset + opts.Limit
	}

	return summaries[offset:end], total, nil
}

// CountJobs returns the total number of jobs in the store.
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// CountByOutcome counts jobs per latest outcome. Jobs without contracts are
// not represented; callers derive that bucket from the total if they need
// it.
func (s *JobStorage) CountByOutcome(ctx context.Context) (map[models.Outcome]int, error) {
	outcomes := []models.Outcome{
		models.OutcomeWaiting,
		models.OutcomeRunning,
		models.OutcomeSuccess,
		models.OutcomeError,
		models.OutcomeCancelled,
		models.OutcomeTryLater,
	}

	counts := make(map[models.Outcome]int, len(outcomes))
	for _, outcome := range outcomes {
		count, err := s.db.Store().Count(&models.JobState{}, badgerhold.Where("LatestOutcome").Eq(outcome))
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs by outcome: %w", err)
		}
		counts[outcome] = int(count)
	}
	return counts, nil
}
