package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Task is a job run on a cron schedule.
type Task struct {
	ID      string
	Name    string
	Expr    string // standard 5-field cron expression
	Run     func(ctx context.Context) error
	Enabled bool
	LastRun time.Time
	NextRun time.Time
	LastErr string
}

// Scheduler runs registered tasks when their cron expression comes due.
type Scheduler struct {
	tasks    map[string]*Task
	logger   *slog.Logger
	mu       sync.Mutex
	running  sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
	tick     time.Duration
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  make(map[string]*Task),
		logger: logger,
		stopCh: make(chan struct{}),
		now:    time.Now,
		tick:   time.Second,
	}
}

// AddTask validates the cron expression and schedules the first run.
func (s *Scheduler) AddTask(task Task) error {
	if task.ID == "" || task.Run == nil {
		return fmt.Errorf("task needs an ID and a Run func")
	}
	if !gronx.New().IsValid(task.Expr) {
		return fmt.Errorf("invalid cron expression %q", task.Expr)
	}
	next, err := gronx.NextTickAfter(task.Expr, s.now(), false)
	if err != nil {
		return fmt.Errorf("next tick for %q: %w", task.Expr, err)
	}
	task.NextRun = next

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = &task
	s.logger.Info("maintenance task added", "id", task.ID, "name", task.Name, "schedule", task.Expr, "next", next)
	return nil
}

func (s *Scheduler) RemoveTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// ListTasks returns a snapshot of the tasks ordered by ID.
func (s *Scheduler) ListTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// Start blocks until ctx is done or Stop is called, then waits for running tasks.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("maintenance scheduler started")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.running.Wait()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopping")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndExecute(ctx, s.now())
		}
	}
}

// Stop halts the scheduler. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// checkAndExecute starts every enabled task whose NextRun has passed.
// A task is not started again while a previous run is still in progress.
func (s *Scheduler) checkAndExecute(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*Task
	for _, task := range s.tasks {
		if !task.Enabled || now.Before(task.NextRun) {
			continue
		}
		next, err := gronx.NextTickAfter(task.Expr, now, false)
		if err != nil {
			s.logger.Error("cannot schedule task", "id", task.ID, "err", err)
			task.Enabled = false
			continue
		}
		task.LastRun = now
		// Pushed forward now so a slow run is not started twice.
		task.NextRun = next
		due = append(due, task)
	}
	s.mu.Unlock()

	for _, task := range due {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			s.execute(ctx, task)
		}()
	}
}

func (s *Scheduler) execute(ctx context.Context, task *Task) {
	s.logger.Info("running maintenance task", "id", task.ID, "name", task.Name)
	err := task.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		task.LastErr = err.Error()
		s.logger.Error("maintenance task failed", "id", task.ID, "err", err)
		return
	}
	task.LastErr = ""
}

// RunNow executes the task with id synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", id)
	}
	return task.Run(ctx)
}
