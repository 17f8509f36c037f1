package bulkjob

import (
	"context"
	"log/slog"
	"time"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/services"
	"porter/internal/services/cms"
)

// Client is the slice of the CMS admin surface the poller drives.
type Client interface {
	SubmitBulk(ctx context.Context, paths []string, op cms.Operation, opContext map[string]string) (cms.JobHandle, error)
	PollJob(ctx context.Context, handle cms.JobHandle) (cms.JobStatus, error)
}

// Outcome is the final verdict for one submitted path.
type Outcome struct {
	Path         string
	Success      bool
	ResourcePath string
}

// Result carries per-path outcomes plus observability counters for the run.
type Result struct {
	JobID     string
	Outcomes  []Outcome
	PollCount int
	Elapsed   time.Duration
}

// Poller submits a path set to a remote bulk operation and polls the job to
// completion. All waits are context-cancellable.
type Poller struct {
	client           Client
	logger           *slog.Logger
	maxSubmitRetries int
	submitRetryDelay time.Duration
	pollInterval     time.Duration
	maxPollAttempts  int
}

// New constructs a poller with the given budgets. Budgets below one are
// raised to one so the poller always makes at least one attempt.
func New(client Client, cfg *config.Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Poller{
		client:           client,
		logger:           logger,
		maxSubmitRetries: cfg.CMS.MaxSubmitRetries,
		submitRetryDelay: time.Duration(cfg.CMS.SubmitRetryDelay) * time.Second,
		pollInterval:     time.Duration(cfg.CMS.PollInterval) * time.Second,
		maxPollAttempts:  cfg.CMS.MaxPollAttempts,
	}
	if p.maxSubmitRetries < 1 {
		p.maxSubmitRetries = 1
	}
	if p.maxPollAttempts < 1 {
		p.maxPollAttempts = 1
	}
	return p
}

// Submit drives one bulk operation over paths and returns one outcome per
// input path. Paths the remote system never reports come back failed. On an
// unrecoverable submission error the outcomes are all failed and the error
// is returned alongside them; auth errors are never retried.
func (p *Poller) Submit(ctx context.Context, paths []string, op cms.Operation, opContext map[string]string) (Result, error) {
	started := time.Now()
	result := Result{Outcomes: make([]Outcome, len(paths))}
	for i, path := range paths {
		result.Outcomes[i] = Outcome{Path: path}
	}
	if len(paths) == 0 {
		return result, nil
	}

	handle, err := p.submitWithRetry(ctx, paths, op, opContext)
	if err != nil {
		result.Elapsed = time.Since(started)
		return result, err
	}
	result.JobID = handle.ID

	merged := p.pollToCompletion(ctx, handle, &result)
	for i := range result.Outcomes {
		if resolved, ok := merged[result.Outcomes[i].Path]; ok {
			result.Outcomes[i].Success = resolved.Success
			result.Outcomes[i].ResourcePath = resolved.ResourcePath
		}
	}
	result.Elapsed = time.Since(started)
	return result, nil
}

func (p *Poller) submitWithRetry(ctx context.Context, paths []string, op cms.Operation, opContext map[string]string) (cms.JobHandle, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxSubmitRetries; attempt++ {
		if attempt > 1 {
			if err := services.SleepWithContext(ctx, p.submitRetryDelay); err != nil {
				return cms.JobHandle{}, err
			}
		}
		handle, err := p.client.SubmitBulk(ctx, paths, op, opContext)
		if err == nil {
			return handle, nil
		}
		// Retrying a rejected credential cannot change the outcome.
		if services.IsAuthError(err) {
			p.logger.Error("bulk submission rejected",
				logging.String(logging.FieldEventType, "bulkjob-auth-failure"),
				logging.String("operation", string(op)),
				logging.Error(err))
			return cms.JobHandle{}, err
		}
		lastErr = err
		p.logger.Warn("bulk submission failed",
			logging.String(logging.FieldEventType, "bulkjob-submit-retry"),
			logging.String("operation", string(op)),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", p.maxSubmitRetries),
			logging.Error(err))
	}
	return cms.JobHandle{}, lastErr
}

// pollToCompletion folds job snapshots into a per-path map. A path recorded
// successful is never downgraded by a later snapshot that omits it or
// reports it failed.
func (p *Poller) pollToCompletion(ctx context.Context, handle cms.JobHandle, result *Result) map[string]Outcome {
	merged := make(map[string]Outcome)
	for attempt := 1; attempt <= p.maxPollAttempts; attempt++ {
		if attempt > 1 {
			if err := services.SleepWithContext(ctx, p.pollInterval); err != nil {
				return merged
			}
		}
		status, err := p.client.PollJob(ctx, handle)
		result.PollCount++
		if err != nil {
			if ctx.Err() != nil {
				return merged
			}
			p.logger.Warn("bulk job poll failed",
				logging.String(logging.FieldEventType, "bulkjob-poll-error"),
				logging.String("job_id", handle.ID),
				logging.Int("attempt", attempt),
				logging.Error(err))
			continue
		}
		for _, resource := range status.Resources {
			existing := merged[resource.Path]
			if existing.Success {
				continue
			}
			merged[resource.Path] = Outcome{
				Path:         resource.Path,
				Success:      resource.Success,
				ResourcePath: resource.ResourcePath,
			}
		}
		if status.Terminal {
			p.logger.Info("bulk job finished",
				logging.String(logging.FieldEventType, "bulkjob-terminal"),
				logging.String("job_id", handle.ID),
				logging.String("state", status.State),
				logging.Int("polls", result.PollCount))
			return merged
		}
	}
	p.logger.Warn("bulk job poll budget exhausted",
		logging.String(logging.FieldEventType, "bulkjob-budget-exhausted"),
		logging.String("job_id", handle.ID),
		logging.Int("polls", result.PollCount))
	return merged
}
