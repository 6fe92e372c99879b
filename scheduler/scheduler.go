package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Scheduler drives recurring sweeps and one-shot delayed tasks. Tasks are
// keyed by name; registering an existing name replaces the old task.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]chan struct{}
	timers  map[string]*time.Timer
	logger  *zap.Logger
	stopped bool
	done    chan struct{}
}

// New creates a Scheduler. Nothing runs until tasks are registered.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]chan struct{}),
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// safeRun shields the scheduler loop from panicking tasks.
func (s *Scheduler) safeRun(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// AddTicker registers fn to run every interval until removed or the
// scheduler stops.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.tickers[name]; ok {
		close(old)
	}
	cancel := make(chan struct{})
	s.tickers[name] = cancel

	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				s.safeRun(name, fn)
			case <-cancel:
				return
			case <-s.done:
				return
			}
		}
	}()
	s.logger.Info("scheduled recurring task",
		zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Re-registering the name before it
// fires discards the pending run.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()
		s.safeRun(name, fn)
	})
}

// Remove cancels the named ticker or pending delay. Unknown names are a
// no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tickers[name]; ok {
		close(cancel)
		delete(s.tickers, name)
	}
	if tm, ok := s.timers[name]; ok {
		tm.Stop()
		delete(s.timers, name)
	}
}

// Stop halts every task. Idempotent; the scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	for _, tm := range s.timers {
		tm.Stop()
	}
	s.tickers = make(map[string]chan struct{})
	s.timers = make(map[string]*time.Timer)
}

// ListTickers returns the names of registered recurring tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
