package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"txt-worker/domain"
)

// Consumer-side interfaces
type Engine interface {
	Start(ctx context.Context, sourcePath string, mode domain.Mode) (<-chan domain.ExtractionEvent, error)
}

type PageStore interface {
	EnsureDir(path string) error
	WritePage(dir string, page domain.PageResult) (string, error)
}

type JobLedger interface {
	RecordAccepted(ctx context.Context, job domain.Job) error
	RecordFinished(ctx context.Context, job domain.Job, res domain.JobResult) error
}

type JobStatusRepository interface {
	MarkRunning(ctx context.Context, job domain.Job) error
	MarkFinished(ctx context.Context, job domain.Job, res domain.JobResult) error
}

type ProgressTracker interface {
	Begin(ctx context.Context, job domain.Job) (int64, error)
	PageWritten(ctx context.Context, jobID string) error
	End(ctx context.Context, job domain.Job) error
}

type PageMirror interface {
	UploadPage(ctx context.Context, job domain.Job, page domain.PageResult) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, job domain.Job, res domain.JobResult) error
}

// JobExecutor turns one job into one text file per page under the job's output directory.
// Everything except the engine and the page store is optional.
type JobExecutor struct {
	engine     Engine
	pages      PageStore
	mode       domain.Mode
	ledger     JobLedger
	statusRepo JobStatusRepository
	progress   ProgressTracker
	mirror     PageMirror
	notifier   Notifier
	now        func() time.Time
}

type ExecutorOption func(*JobExecutor)

func WithEngine(e Engine) ExecutorOption {
	return func(x *JobExecutor) { x.engine = e }
}

func WithPageStore(p PageStore) ExecutorOption {
	return func(x *JobExecutor) { x.pages = p }
}

func WithMode(m domain.Mode) ExecutorOption {
	return func(x *JobExecutor) { x.mode = m }
}

func WithJobLedger(l JobLedger) ExecutorOption {
	return func(x *JobExecutor) { x.ledger = l }
}

func WithJobStatusRepository(r JobStatusRepository) ExecutorOption {
	return func(x *JobExecutor) { x.statusRepo = r }
}

func WithProgressTracker(p ProgressTracker) ExecutorOption {
	return func(x *JobExecutor) { x.progress = p }
}

func WithPageMirror(m PageMirror) ExecutorOption {
	return func(x *JobExecutor) { x.mirror = m }
}

func WithNotifier(n Notifier) ExecutorOption {
	return func(x *JobExecutor) { x.notifier = n }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(x *JobExecutor) { x.now = now }
}

func NewJobExecutor(opts ...ExecutorOption) *JobExecutor {
	x := &JobExecutor{
		mode: domain.ModeOCR,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Run blocks until the engine reports a terminal event for job, writing each page as it arrives.
// Pages already written stay on disk when extraction fails.
func (x *JobExecutor) Run(ctx context.Context, job domain.Job) error {
	if err := x.pages.EnsureDir(job.OutputDir); err != nil {
		return err
	}

	x.begin(ctx, job)

	events, err := x.engine.Start(ctx, job.SourcePath, x.mode)
	if err != nil {
		err = fmt.Errorf("failed to start %s extraction of %s: %w", x.mode, job.SourcePath, err)
		x.finish(ctx, job, x.result(job, 0, 0, err))
		return err
	}

	stream := domain.NewStream()
	var written int
	var writeErrs []error
	for ev := range events {
		if err := stream.Apply(ev); err != nil {
			log.Printf("Job %s: dropping %s event: %v", job.ID, ev.Kind, err)
			continue
		}
		if ev.Kind != domain.EventPage {
			continue
		}
		if err := x.writePage(ctx, job, ev.Page); err != nil {
			writeErrs = append(writeErrs, err)
			continue
		}
		written++
	}
	stream.Close()

	if len(writeErrs) > 0 {
		log.Printf("Warning: job %s failed to write %d of %d pages: %v", job.ID, len(writeErrs), stream.Pages(), errors.Join(writeErrs...))
	}

	res := x.result(job, written, len(writeErrs), stream.Err())
	x.finish(ctx, job, res)

	if stream.State() == domain.StreamFailed {
		return stream.Err()
	}
	log.Printf("Job %s DONE: %d pages written to %s", job.ID, written, job.OutputDir)
	return nil
}

func (x *JobExecutor) writePage(ctx context.Context, job domain.Job, page domain.PageResult) error {
	path, err := x.pages.WritePage(job.OutputDir, page)
	if err != nil {
		return err
	}

	if x.mirror != nil {
		if uri, err := x.mirror.UploadPage(ctx, job, page); err != nil {
			log.Printf("Error mirroring %s: %v", path, err)
		} else {
			log.Printf("Mirrored %s to %s", path, uri)
		}
	}
	if x.progress != nil {
		if err := x.progress.PageWritten(ctx, job.ID); err != nil {
			log.Printf("Error tracking progress for job %s: %v", job.ID, err)
		}
	}
	return nil
}

func (x *JobExecutor) result(job domain.Job, written, failed int, err error) domain.JobResult {
	res := domain.JobResult{
		JobID:        job.ID,
		Status:       domain.StatusCompleted,
		PagesWritten: written,
		PageErrors:   failed,
		CompletedAt:  x.now().UTC(),
	}
	if err != nil {
		res.Status = domain.StatusFailed
		res.Err = err
	}
	return res
}

func (x *JobExecutor) begin(ctx context.Context, job domain.Job) {
	if x.ledger != nil {
		if err := x.ledger.RecordAccepted(ctx, job); err != nil {
			log.Printf("Error recording job %s: %v", job.ID, err)
		}
	}
	if x.statusRepo != nil {
		if err := x.statusRepo.MarkRunning(ctx, job); err != nil {
			log.Printf("Error syncing status to DynamoDB for job %s: %v", job.ID, err)
		}
	}
	if x.progress != nil {
		writers, err := x.progress.Begin(ctx, job)
		if err != nil {
			log.Printf("Error tracking progress for job %s: %v", job.ID, err)
		} else if writers > 1 {
			log.Printf("Warning: %d jobs are writing to %s, pages may be overwritten", writers, job.OutputDir)
		}
	}
}

// finish reports the terminal result. None of these failures change the job outcome.
func (x *JobExecutor) finish(ctx context.Context, job domain.Job, res domain.JobResult) {
	if x.ledger != nil {
		if err := x.ledger.RecordFinished(ctx, job, res); err != nil {
			log.Printf("Error recording job %s: %v", job.ID, err)
		}
	}
	if x.statusRepo != nil {
		if err := x.statusRepo.MarkFinished(ctx, job, res); err != nil {
			log.Printf("Error syncing status to DynamoDB for job %s: %v", job.ID, err)
		}
	}
	if x.progress != nil {
		if err := x.progress.End(ctx, job); err != nil {
			log.Printf("Error tracking progress for job %s: %v", job.ID, err)
		}
	}
	if x.notifier != nil {
		if err := x.notifier.Notify(ctx, job, res); err != nil {
			log.Printf("Error notifying completion of job %s: %v", job.ID, err)
		}
	}
}
