// Package scheduler runs named periodic tasks, such as the visibility
// sweep tick.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns a set of named tickers. Scheduling a name that is
// already registered replaces the old task.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]chan struct{}
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]chan struct{}),
		logger: logger,
	}
}

// Schedule runs fn every interval until the task is cancelled or the
// scheduler stops. A panicking fn is logged and the ticker keeps going.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn func()) {
	done := make(chan struct{})

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		close(old)
	}
	s.tasks[name] = done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-done:
				return
			}
		}
	}()

	s.logger.Info("task scheduled",
		zap.String("task", name), zap.Duration("interval", interval))
}

func (s *Scheduler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// Cancel stops the named task. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, ok := s.tasks[name]; ok {
		close(done)
		delete(s.tasks, name)
	}
}

// Stop cancels every task. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, done := range s.tasks {
		close(done)
		delete(s.tasks, name)
	}
}

// Tasks returns the registered task names, sorted.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
