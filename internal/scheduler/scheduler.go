package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"db-sync/internal/engine"
	"db-sync/internal/state"

	"github.com/gookit/slog"
	"github.com/robfig/cron/v3"
)

// Runner is one schedulable job.
type Runner interface {
	Run(ctx context.Context) (*state.RunResult, error)
}

// Entry describes a scheduled job.
type Entry struct {
	Job      string    `json:"job"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
	Running  bool      `json:"running"`
	Last     *LastRun  `json:"last,omitempty"`
}

type LastRun struct {
	ID     string       `json:"id"`
	Status state.Status `json:"status"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

type job struct {
	name     string
	schedule string
	id       cron.EntryID
	running  bool
	last     *LastRun
}

// Scheduler fires jobs on their cron schedules. Stop waits for running jobs
// up to a grace period, then cancels them.
type Scheduler struct {
	cron   *cron.Cron
	grace  time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	slog.Debugf("cron: %s %v", msg, kv)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	slog.Errorf("cron: %s %v: %v", msg, kv, err)
}

func New(grace time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		grace:  grace,
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*job{},
	}
}

// Add registers r under name with a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, r Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q is already scheduled", name)
	}
	j := &job{name: name, schedule: spec}
	id, err := s.cron.AddFunc(spec, func() { s.fire(j, r) })
	if err != nil {
		return fmt.Errorf("job %q: bad schedule %q: %w", name, spec, err)
	}
	j.id = id
	s.jobs[name] = j
	slog.Infof("scheduled job %s at %q", name, spec)
	return nil
}

func (s *Scheduler) fire(j *job, r Runner) {
	s.setRunning(j, true)
	defer s.setRunning(j, false)

	res, err := r.Run(s.ctx)
	if errors.Is(err, engine.ErrRunInProgress) {
		slog.Warnf("[%s] skipped: previous run still active", j.name)
		return
	}
	last := &LastRun{At: time.Now()}
	if res != nil {
		last.ID = res.ID
		last.Status = res.Status
	}
	if err != nil {
		last.Status = state.StatusFailed
		last.Error = err.Error()
	}
	s.mu.Lock()
	j.last = last
	s.mu.Unlock()
}

func (s *Scheduler) setRunning(j *job, v bool) {
	s.mu.Lock()
	j.running = v
	s.mu.Unlock()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones. After the grace period
// their context is cancelled and Stop waits for them to unwind.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		return
	case <-time.After(s.grace):
	}
	slog.Warnf("jobs still running after %s, cancelling them", s.grace)
	s.cancel()
	<-done.Done()
}

// Entries lists scheduled jobs ordered by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := s.cron.Entry(j.id)
		out = append(out, Entry{
			Job:      j.name,
			Schedule: j.schedule,
			Next:     e.Next,
			Prev:     e.Prev,
			Running:  j.running,
			Last:     j.last,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Job < out[b].Job })
	return out
}
