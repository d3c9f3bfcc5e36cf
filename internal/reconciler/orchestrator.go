package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// Orchestrator reconciles several projects concurrently and reports
// progress as each one finishes
type Orchestrator struct {
	service        *Service
	maxConcurrency int
	logger         logger.Logger

	progressCallbacks []ProgressCallback
	progress          *BatchProgress
	progressMutex     sync.Mutex
}

// BatchProgress tracks the progress of a batch run
type BatchProgress struct {
	TotalProjects      int           `json:"total_projects"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	LastProject        string        `json:"last_project"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// ProgressCallback is called with a snapshot after every finished project
type ProgressCallback func(BatchProgress)

// ProjectOutcome is the result or error of one project in a batch
type ProjectOutcome struct {
	ProjectID string  `json:"project_id"`
	Result    *Result `json:"result,omitempty"`
	Err       error   `json:"-"`
	Error     string  `json:"error,omitempty"`
}

// BatchResult holds the outcomes of a batch in request order
type BatchResult struct {
	Outcomes  []*ProjectOutcome `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Duration  time.Duration     `json:"duration"`
}

// Errors returns the reconciler errors of the failed projects
func (b *BatchResult) Errors() []*errors.ReconcilerError {
	var out []*errors.ReconcilerError
	for _, o := range b.Outcomes {
		if o.Err == nil {
			continue
		}
		out = append(out, errors.WrapIfNeeded(o.Err, errors.CategoryInternal, errors.CodeUnexpectedError, "reconciliation failed"))
	}
	return out
}

// NewOrchestrator creates an orchestrator running at most maxConcurrency
// projects at a time
func NewOrchestrator(service *Service, maxConcurrency int) (*Orchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_service", nil, nil).
			WithSuggestion("Provide a valid Service instance")
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &Orchestrator{
		service:        service,
		maxConcurrency: maxConcurrency,
		logger:         service.logger.WithComponent("orchestrator"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// ReconcileAll reconciles every project. Repeated project ids are run once,
// since a second concurrent run would make the first one stale. A failing
// project does not stop the others.
func (o *Orchestrator) ReconcileAll(ctx context.Context, projectIDs []string) *BatchResult {
	projects := uniqueProjects(projectIDs)
	startTime := time.Now()
	o.initializeProgress(len(projects), startTime)

	o.logger.WithFields(logger.Fields{
		"projects":        len(projects),
		"max_concurrency": o.maxConcurrency,
	}).Info("Starting batch reconciliation")

	outcomes := make([]*ProjectOutcome, len(projects))
	p := pool.New().WithMaxGoroutines(o.maxConcurrency)
	for i, projectID := range projects {
		p.Go(func() {
			result, err := o.service.Reconcile(ctx, &Request{ProjectID: projectID})
			outcome := &ProjectOutcome{ProjectID: projectID, Result: result, Err: err}
			if err != nil {
				outcome.Error = err.Error()
			}
			outcomes[i] = outcome
			o.updateProgress(projectID, err != nil)
		})
	}
	p.Wait()

	batch := &BatchResult{Outcomes: outcomes, Duration: time.Since(startTime)}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			batch.Failed++
		} else {
			batch.Succeeded++
		}
	}

	o.logger.WithFields(logger.Fields{
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
		"duration":  batch.Duration.String(),
	}).Info("Batch reconciliation completed")
	return batch
}

// Progress returns a snapshot of the current batch progress
func (o *Orchestrator) Progress() BatchProgress {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	if o.progress == nil {
		return BatchProgress{}
	}
	return *o.progress
}

func (o *Orchestrator) initializeProgress(total int, start time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.progress = &BatchProgress{
		TotalProjects: total,
		StartTime:     start,
	}
}

func (o *Orchestrator) updateProgress(projectID string, failed bool) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	pr := o.progress
	pr.Completed++
	if failed {
		pr.Failed++
	}
	pr.LastProject = projectID
	pr.ElapsedTime = time.Since(pr.StartTime)
	pr.PercentComplete = float64(pr.Completed) / float64(pr.TotalProjects) * 100

	if pr.Completed < pr.TotalProjects {
		perProject := pr.ElapsedTime / time.Duration(pr.Completed)
		pr.EstimatedRemaining = perProject * time.Duration(pr.TotalProjects-pr.Completed)
	} else {
		pr.EstimatedRemaining = 0
	}

	snapshot := *pr
	for _, callback := range o.progressCallbacks {
		callback(snapshot)
	}
}

func uniqueProjects(projectIDs []string) []string {
	seen := make(map[string]struct{}, len(projectIDs))
	out := make([]string, 0, len(projectIDs))
	for _, id := range projectIDs {
		id = strings.TrimSpace(id)
		key := sequenceKey(id)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
