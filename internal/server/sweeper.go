package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryan-buckman/ncv/internal/database"
)

// SweepInterval is how often expired sessions are removed.
const SweepInterval = time.Hour

// Sweeper periodically deletes sessions older than the session TTL.
type Sweeper struct {
	store    database.Store
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates a background session sweeper.
func NewSweeper(store database.Store, ttl time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: SweepInterval,
		log:      log,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Sweep deletes expired sessions once.
func (s *Sweeper) Sweep() (int64, error) {
	n, err := s.store.DeleteSessionsBefore(s.now().Add(-s.ttl))
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("expired sessions removed")
	}
	return n, nil
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.Sweep()
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.interval):
			}
		}
	}()
}

// Stop stops the sweeper gracefully.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
