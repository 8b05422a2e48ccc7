// Package heartbeat implements the liveness probe scheduler. While the
// connection is up it fires a probe callback every interval; the scheduler
// is stopped synchronously on leaving the connected state so no probe runs
// against a dead or closing transport, and a fresh scheduler is started on
// every new connection.
package heartbeat

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler fires a probe function on a fixed interval. A Scheduler is
// single-use: Start once, Stop once. Stop waits for the loop to exit, so no
// probe fires after Stop returns.
type Scheduler struct {
	interval time.Duration
	probe    func()
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler that calls probe every interval. The interval
// must be positive.
func New(interval time.Duration, probe func(), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		probe:    probe,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the probe loop. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.run()

	s.logger.Debug("heartbeat started", "interval", s.interval)
}

// Stop cancels the loop and waits for it to exit. Safe to call multiple
// times and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("heartbeat stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// Re-check done so a probe cannot fire after Stop wins the race.
			select {
			case <-s.done:
				return
			default:
			}
			s.probe()
		}
	}
}
