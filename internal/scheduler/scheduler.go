package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work. ctx is cancelled on Stop.
type Job func(ctx context.Context)

// Scheduler runs periodic jobs on a cron engine and keyed one-shot jobs on
// timers. A single instance is assumed; there is no distributed coordination.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timers   map[string]*time.Timer
	periodic map[string]cron.EntryID
	running  sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler. Periodic jobs never overlap with themselves.
func New(log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*time.Timer),
		periodic: make(map[string]cron.EntryID),
	}
}

// RunEvery registers job to fire every interval after Start.
func (s *Scheduler) RunEvery(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.periodic[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.log.Debug("periodic job firing", zap.String("job", name))
		job(s.ctx)
	}))
	s.periodic[name] = id
	s.log.Info("periodic job registered", zap.String("job", name), zap.Duration("every", interval))
	return nil
}

// RunAfter fires job once after delay. Scheduling the same key again
// replaces the earlier timer.
func (s *Scheduler) RunAfter(key string, delay time.Duration, job Job) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		s.log.Warn("scheduler stopped; one-shot dropped", zap.String("key", key))
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.running.Add(1)
		s.mu.Unlock()
		defer s.running.Done()

		defer func() {
			if r := recover(); r != nil {
				s.log.Error("one-shot job panicked", zap.String("key", key), zap.Any("panic", r))
			}
		}()
		job(s.ctx)
	})
	s.timers[key] = t
}

// Pending returns the number of one-shot jobs not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Start begins firing periodic jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop cancels pending one-shots, waits for running jobs and stops the cron
// engine. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("scheduler stopping")
		s.mu.Lock()
		for key, t := range s.timers {
			t.Stop()
			delete(s.timers, key)
		}
		s.cancel()
		s.mu.Unlock()

		<-s.cron.Stop().Done()
		s.running.Wait()
		s.log.Info("scheduler stopped")
	})
}

// cronLogger bridges cron's logger onto zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
