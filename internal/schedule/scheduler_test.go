package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler()
	assert.Error(t, s.AddJob(&countingJob{}, "not a spec"))
	assert.NoError(t, s.AddJob(&countingJob{}, "*/5 * * * *"))
	assert.NoError(t, s.AddJob(&countingJob{}, "@every 1m"))
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{block: make(chan struct{})}
	run := s.wrap(job, "@every 1s")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run()
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	run()
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	wg.Wait()
	run()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{err: errors.New("ignored")}
	require.NoError(t, s.AddJob(job, "@every 1s"))

	s.Start(context.Background())
	defer s.Stop()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

type stubResumer struct {
	n   int
	err error
}

func (s *stubResumer) ResumePending(ctx context.Context) (int, error) {
	return s.n, s.err
}

func TestResumeJob(t *testing.T) {
	job := NewResumeJob(&stubResumer{n: 2})
	assert.Equal(t, "resume_pending", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	boom := errors.New("database down")
	assert.ErrorIs(t, NewResumeJob(&stubResumer{err: boom}).Run(context.Background()), boom)
}
