package core

import (
	"context"
	"os"
	"sync"
	"time"
)

// HeartbeatState aggregates per-process worker metrics and flushes them to
// redis on a fixed interval.
type HeartbeatState struct {
	mu      sync.Mutex
	hb      WorkerHeartbeat
	running map[string]time.Time
	ticker  *time.Ticker
}

func NewHeartbeatState(workerID, hostname string, concurrency int) *HeartbeatState {
	return &HeartbeatState{
		hb: WorkerHeartbeat{
			WorkerID:     workerID,
			Hostname:     hostname,
			PID:          os.Getpid(),
			Concurrency:  concurrency,
			Status:       "starting",
			RunningCount: 0,
			StartedAt:    time.Now(),
			UpdatedAt:    time.Now(),
			RunningJobs:  []string{},
		},
		running: make(map[string]time.Time),
		ticker:  time.NewTicker(5 * time.Second),
	}
}

// Start publishes heartbeats until ctx is done. Run it in its own goroutine.
func (s *HeartbeatState) Start(ctx context.Context, client RedisClientRaw) {
	s.flush(ctx, client)
	defer s.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.flush(ctx, client)
		}
	}
}

// JobStarted records a running job and flips the status to busy.
func (s *HeartbeatState) JobStarted(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "busy"
	s.running[job] = time.Now()
	s.updateRunningFieldsLocked()
}

// JobFinished updates counters when a job completes.
func (s *HeartbeatState) JobFinished(job string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, job)
	s.hb.ProcessedTotal++
	if err != nil {
		s.hb.FailedTotal++
		s.hb.LastError = err.Error()
	}
	if len(s.running) == 0 {
		s.hb.Status = "idle"
	} else {
		s.hb.Status = "busy"
	}
	s.updateRunningFieldsLocked()
}

func (s *HeartbeatState) updateRunningFieldsLocked() {
	s.hb.RunningCount = len(s.running)
	s.hb.RunningJobs = s.hb.RunningJobs[:0]
	for job := range s.running {
		if len(s.hb.RunningJobs) >= 3 {
			break
		}
		s.hb.RunningJobs = append(s.hb.RunningJobs, job)
	}
	if s.hb.RunningCount == 0 {
		s.hb.CurrentJob = ""
	} else {
		s.hb.CurrentJob = s.hb.RunningJobs[0]
	}
}

func (s *HeartbeatState) flush(ctx context.Context, client RedisClientRaw) {
	s.mu.Lock()
	s.hb.UptimeSeconds = int64(time.Since(s.hb.StartedAt).Seconds())
	s.hb.UpdateRuntimeStats()
	hbCopy := s.hb
	s.mu.Unlock()
	_ = SaveHeartbeat(ctx, client, hbCopy)
}
