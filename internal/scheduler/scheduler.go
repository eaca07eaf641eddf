package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// DefaultWakeInterval is how often the scheduler checks for due tasks. Task
// intervals are multiples of hours, so an hourly wake keeps drift bounded
// without busy polling.
const DefaultWakeInterval = time.Hour

// Task is one periodic job. Lower Priority values run first when several
// tasks are due in the same wake cycle.
type Task struct {
	Name     string
	Interval time.Duration
	Priority int
	Run      func(ctx context.Context) error
}

// TaskStatus is a snapshot of one task's execution history.
type TaskStatus struct {
	Name         string
	Interval     time.Duration
	Priority     int
	LastRun      time.Time
	LastError    string
	RunCount     int64
	FailureCount int64
	NextDue      time.Time
}

type taskState struct {
	task         Task
	lastRun      time.Time
	lastError    string
	runCount     int64
	failureCount int64
}

// Scheduler runs registered tasks at their intervals. One task failing never
// stops the loop or the other tasks in the same cycle.
type Scheduler struct {
	log      zerolog.Logger
	clock    Clock
	notifier domain.NotificationService
	wake     time.Duration

	mu      sync.Mutex
	tasks   []*taskState
	running bool
	stop    chan struct{}
	done    sync.WaitGroup
}

func New(log zerolog.Logger, clock Clock, notifier domain.NotificationService, wake time.Duration) *Scheduler {
	if wake <= 0 {
		wake = DefaultWakeInterval
	}
	return &Scheduler{
		log:      log.With().Str("module", "scheduler").Logger(),
		clock:    clock,
		notifier: notifier,
		wake:     wake,
	}
}

// Register adds a task. A task registered while the scheduler is running
// joins the next wake cycle.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil || task.Interval <= 0 {
		return errors.New("task needs a name, an interval and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.tasks {
		if st.task.Name == task.Name {
			return errors.Errorf("task %q already registered", task.Name)
		}
	}
	s.tasks = append(s.tasks, &taskState{task: task})
	return nil
}

// Start launches the scheduling loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.done.Add(1)
	go s.loop(ctx)
	s.log.Info().Dur("wake_interval", s.wake).Msg("scheduler started")
}

// Stop halts the loop and waits for any in-flight cycle to finish. Stopping
// a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.done.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.done.Done()

	ticker := s.clock.NewTicker(s.wake)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C():
			s.RunDue(ctx)
		}
	}
}

// dueTasks returns the due tasks ordered by priority. Caller must not hold
// the lock.
func (s *Scheduler) dueTasks(now time.Time) []*taskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*taskState
	for _, st := range s.tasks {
		if st.lastRun.IsZero() || !now.Before(st.lastRun.Add(st.task.Interval)) {
			due = append(due, st)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].task.Priority < due[j].task.Priority
	})
	return due
}

// RunDue executes every due task once, in priority order.
func (s *Scheduler) RunDue(ctx context.Context) {
	now := s.clock.Now()
	for _, st := range s.dueTasks(now) {
		s.execute(ctx, st, now)
	}
}

func (s *Scheduler) execute(ctx context.Context, st *taskState, now time.Time) {
	s.log.Debug().Str("task", st.task.Name).Msg("running scheduled task")

	err := runSafely(ctx, st.task.Run)

	s.mu.Lock()
	st.lastRun = now
	st.runCount++
	if err != nil {
		st.failureCount++
		st.lastError = err.Error()
	} else {
		st.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("task", st.task.Name).Msg("scheduled task failed")
		if s.notifier != nil {
			if nerr := s.notifier.SendTaskFailure(ctx, st.task.Name, err); nerr != nil {
				s.log.Warn().Err(nerr).Msg("task failure notification failed")
			}
		}
	}
}

// runSafely converts a panicking task into an error so the loop survives.
func runSafely(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panicked: %v", r)
		}
	}()
	return run(ctx)
}

// RunTask executes one task by name immediately, regardless of its schedule.
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *taskState
	for _, st := range s.tasks {
		if st.task.Name == name {
			target = st
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return errors.Errorf("unknown task %q", name)
	}
	s.execute(ctx, target, s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if target.lastError != "" {
		return errors.New(target.lastError)
	}
	return nil
}

// Status snapshots every registered task, ordered by priority.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, st := range s.tasks {
		status := TaskStatus{
			Name:         st.task.Name,
			Interval:     st.task.Interval,
			Priority:     st.task.Priority,
			LastRun:      st.lastRun,
			LastError:    st.lastError,
			RunCount:     st.runCount,
			FailureCount: st.failureCount,
		}
		if !st.lastRun.IsZero() {
			status.NextDue = st.lastRun.Add(st.task.Interval)
		}
		out = append(out, status)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
