package schedule

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Resumer finishes documents whose ingestion was interrupted
type Resumer interface {
	ResumePending(ctx context.Context) (int, error)
}

// ResumeJob sweeps PENDING and PROCESSING documents on every tick
type ResumeJob struct {
	resumer Resumer
}

func NewResumeJob(r Resumer) *ResumeJob {
	return &ResumeJob{resumer: r}
}

func (j *ResumeJob) Name() string {
	return "resume_pending"
}

func (j *ResumeJob) Run(ctx context.Context) error {
	n, err := j.resumer.ResumePending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("processed", n).Msg("Resumed documents")
	}
	return nil
}
