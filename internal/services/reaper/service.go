package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/services/dispatch"
)

// Service periodically errors out contracts whose worker stopped
// heartbeating. Workers that merely lost connectivity can resume the job
// through an explicit retry.
type Service struct {
	dispatch   *dispatch.Service
	cron       *cron.Cron
	logger     arbor.ILogger
	schedule   string
	staleAfter time.Duration
	mu         sync.Mutex
	sweeping   bool
	running    bool
}

// NewService creates the reaper from config. It does nothing until Start.
func NewService(dispatchService *dispatch.Service, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		dispatch:   dispatchService,
		cron:       cron.New(),
		logger:     logger,
		schedule:   config.Reaper.Schedule,
		staleAfter: config.Reaper.StaleAfterDuration(),
	}
}

// Start schedules the sweep.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("reaper already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule reaper sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Str("stale_after", s.staleAfter.String()).
		Msg("Reaper started")
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes on its own.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Reaper stopped")
	return nil
}

// IsRunning reports whether the schedule is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// sweep expires stale commitments once. Overlapping ticks are skipped so a
// slow sweep never stacks.
func (s *Service) sweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in reaper sweep")
		}
	}()

	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Debug().Msg("Reaper sweep already in progress, skipping this cycle")
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	started := time.Now()
	expired, err := s.dispatch.ExpireStaleCommitments(context.Background(), s.staleAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Reaper sweep failed")
		return
	}

	if expired > 0 {
		s.logger.Info().
			Int("expired", expired).
			Dur("duration", time.Since(started)).
			Msg("Reaper sweep completed")
	} else {
		s.logger.Debug().Msg("Reaper sweep completed, nothing stale")
	}
}
