// Package jobs runs the periodic maintenance the request path leaves behind:
// expired sessions, dead share tokens and abandoned upload temp files.
package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"filevault/internal/repository"
	"filevault/internal/storage"
)

const tempMaxAge = 24 * time.Hour

type Scheduler struct {
	cron     *cron.Cron
	cache    *redis.Client
	sessions repository.SessionRepo
	shares   repository.ShareRepo
	store    storage.BlobStore
	log      zerolog.Logger
}

func NewScheduler(
	cache *redis.Client,
	sessions repository.SessionRepo,
	shares repository.ShareRepo,
	store storage.BlobStore,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cache:    cache,
		sessions: sessions,
		shares:   shares,
		store:    store,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 */15 * * * *", s.cleanupSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 30 * * * *", s.cleanupShares); err != nil { // hourly
		return err
	}
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.sweepTemp); err != nil { // nightly
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for in-flight jobs, bounded so shutdown cannot hang on a stuck
// sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

// acquireLock takes a short redis lease so only one instance runs a given
// job per window. Without redis every instance runs the jobs; they are all
// idempotent, just wasteful to duplicate.
func (s *Scheduler) acquireLock(ctx context.Context, name string, ttl time.Duration) bool {
	if s.cache == nil {
		return true
	}
	ok, err := s.cache.SetNX(ctx, "jobs:lock:"+name, "1", ttl).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("job", name).Msg("job lock check failed, running anyway")
		return true
	}
	return ok
}

func (s *Scheduler) cleanupSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !s.acquireLock(ctx, "sessions", 10*time.Minute) {
		return
	}

	n, err := s.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("expired session cleanup failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("expired sessions removed")
	}
}

func (s *Scheduler) cleanupShares() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !s.acquireLock(ctx, "shares", 30*time.Minute) {
		return
	}

	n, err := s.shares.DeleteUnusable(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("share token cleanup failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("dead share tokens removed")
	}
}

func (s *Scheduler) sweepTemp() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if !s.acquireLock(ctx, "tempsweep", time.Hour) {
		return
	}

	n, err := s.store.SweepTemp(ctx, tempMaxAge)
	if err != nil {
		s.log.Error().Err(err).Msg("temp sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("removed", n).Msg("abandoned temp uploads swept")
	}
}
